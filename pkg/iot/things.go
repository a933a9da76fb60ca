package iot

import (
	"strings"
)

// VolumeControl is the output volume in [0, 100].
type VolumeControl interface {
	OutputVolume() int
	SetOutputVolume(volume int)
}

// NewSpeaker exposes the output volume.
func NewSpeaker(vc VolumeControl) *Thing {
	return NewThing("Speaker", "当前 AI 机器人的扬声器").
		AddProperty(Property{
			Name:        "volume",
			Description: "当前音量值",
			Type:        TypeNumber,
			Get:         func() any { return vc.OutputVolume() },
		}).
		AddMethod(Method{
			Name:        "SetVolume",
			Description: "设置音量",
			Parameters: []Parameter{
				{Name: "volume", Description: "0到100之间的整数", Type: TypeNumber, Required: true},
			},
			Invoke: func(p Params) error {
				v, err := p.Int("volume")
				if err != nil {
					return err
				}
				vc.SetOutputVolume(min(max(v, 0), 100))
				return nil
			},
		})
}

// DanceControl plays named dances.
type DanceControl interface {
	Dance(name string)
	IsDancing() bool
}

// NewDanceController exposes the dances in names.
func NewDanceController(dc DanceControl, names []string) *Thing {
	return NewThing("Dance Controller", "角色跳舞控制器").
		AddProperty(Property{
			Name:        "IsEnabled",
			Description: "角色是否支持跳舞",
			Type:        TypeBoolean,
			Get:         func() any { return len(names) > 0 },
		}).
		AddProperty(Property{
			Name:        "IsDancing",
			Description: "角色是否跳舞",
			Type:        TypeBoolean,
			Get:         func() any { return dc.IsDancing() },
		}).
		AddMethod(Method{
			Name:        "Dance",
			Description: "角色跳舞",
			Parameters: []Parameter{
				{Name: "name", Description: "舞蹈名称, " + strings.Join(names, " 或 "), Type: TypeString, Required: true},
			},
			Invoke: func(p Params) error {
				name, err := p.String("name")
				if err != nil {
					return err
				}
				dc.Dance(name)
				return nil
			},
		})
}
