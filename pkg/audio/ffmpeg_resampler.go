//go:build ffmpeg

package audio

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

// FFmpegResampler 基于 libswresample 的重采样器，构建时需要 -tags ffmpeg
//
// 输出长度与 LinearResampler 一致：不足补零，超出截断
type FFmpegResampler struct {
	ctx      *astiav.SoftwareResampleContext
	inFrame  *astiav.Frame
	outFrame *astiav.Frame
	inRate   int
	outRate  int

	out *ScratchBuffer[int16]
}

// NewFFmpegResampler 创建新的重采样器
func NewFFmpegResampler(inRate, outRate int) (*FFmpegResampler, error) {
	r := &FFmpegResampler{out: NewScratchBuffer[int16](1024)}
	if err := r.Configure(inRate, outRate); err != nil {
		return nil, err
	}
	return r, nil
}

// Configure 重新配置采样率，丢弃旧的滤波器状态
func (r *FFmpegResampler) Configure(inRate, outRate int) error {
	// 验证参数
	if inRate <= 0 || outRate <= 0 {
		return fmt.Errorf("%w: %d -> %d", ErrInvalidRate, inRate, outRate)
	}

	r.Close()

	// 创建重采样上下文
	r.ctx = astiav.AllocSoftwareResampleContext()
	if r.ctx == nil {
		return fmt.Errorf("failed to allocate resample context")
	}

	// 分配输入帧
	r.inFrame = astiav.AllocFrame()
	if r.inFrame == nil {
		r.Close()
		return fmt.Errorf("failed to allocate input frame")
	}

	// 分配输出帧
	r.outFrame = astiav.AllocFrame()
	if r.outFrame == nil {
		r.Close()
		return fmt.Errorf("failed to allocate output frame")
	}

	r.inRate = inRate
	r.outRate = outRate
	return nil
}

func (r *FFmpegResampler) GetOutputSamples(n int) int {
	return outputSamples(n, r.inRate, r.outRate)
}

func (r *FFmpegResampler) InputSampleRate() int  { return r.inRate }
func (r *FFmpegResampler) OutputSampleRate() int { return r.outRate }

// Close 释放资源
func (r *FFmpegResampler) Close() {
	if r.ctx != nil {
		r.ctx.Free()
		r.ctx = nil
	}
	if r.inFrame != nil {
		r.inFrame.Free()
		r.inFrame = nil
	}
	if r.outFrame != nil {
		r.outFrame.Free()
		r.outFrame = nil
	}
	r.inRate, r.outRate = 0, 0
}

// Process 执行音频重采样
func (r *FFmpegResampler) Process(in []int16) ([]int16, error) {
	const align = 0

	if r.ctx == nil {
		return nil, ErrNotConfigured
	}
	outN := r.GetOutputSamples(len(in))
	dst := r.out.Ensure(outN)
	if len(in) == 0 || outN == 0 {
		return dst, nil
	}

	// 释放之前的帧缓冲区
	r.inFrame.Unref()
	r.outFrame.Unref()

	// 设置输入帧参数
	r.inFrame.SetChannelLayout(astiav.ChannelLayoutMono)
	r.inFrame.SetSampleFormat(astiav.SampleFormatS16)
	r.inFrame.SetSampleRate(r.inRate)
	r.inFrame.SetNbSamples(len(in))

	// 设置输出帧参数
	r.outFrame.SetChannelLayout(astiav.ChannelLayoutMono)
	r.outFrame.SetSampleFormat(astiav.SampleFormatS16)
	r.outFrame.SetSampleRate(r.outRate)
	r.outFrame.SetNbSamples(outN)

	if err := r.inFrame.AllocBuffer(align); err != nil {
		return nil, fmt.Errorf("failed to allocate input buffer: %w", err)
	}
	if err := r.outFrame.AllocBuffer(align); err != nil {
		return nil, fmt.Errorf("failed to allocate output buffer: %w", err)
	}
	if err := r.inFrame.MakeWritable(); err != nil {
		return nil, fmt.Errorf("making frame writable failed: %w", err)
	}

	// FFmpeg 可能需要更大的对齐缓冲区，获取实际缓冲区大小
	actualBufferSize, err := r.inFrame.SamplesBufferSize(align)
	if err != nil {
		return nil, fmt.Errorf("failed to get buffer size: %w", err)
	}
	inputBuffer := Int16ToBytes(in)
	if len(inputBuffer) < actualBufferSize {
		padded := make([]byte, actualBufferSize)
		copy(padded, inputBuffer)
		inputBuffer = padded
	}
	if err := r.inFrame.Data().SetBytes(inputBuffer[:actualBufferSize], align); err != nil {
		return nil, fmt.Errorf("setting frame's data failed: %w", err)
	}

	if err := r.ctx.ConvertFrame(r.inFrame, r.outFrame); err != nil {
		return nil, fmt.Errorf("failed to resample: %w", err)
	}

	outputData, err := r.outFrame.Data().Bytes(align)
	if err != nil {
		return nil, fmt.Errorf("getting output data failed: %w", err)
	}

	// swr 内部有延迟，输出长度按统一规则补齐
	samples := BytesToInt16(outputData)
	n := copy(dst, samples)
	clear(dst[n:])
	return dst, nil
}
