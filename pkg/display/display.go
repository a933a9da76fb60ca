// Package display renders the conversation for the user. Displays consume
// talk changes asynchronously from the event bus; nothing in the client
// waits on them.
package display

import (
	"context"
	"time"
)

// Display is driven by the frame tick through Update and ShowNotification.
type Display interface {
	Start(ctx context.Context) error
	Update(dt time.Duration)
	ShowNotification(msg string, d time.Duration)
	Close() error
}

// Nop shows nothing.
type Nop struct{}

func (Nop) Start(context.Context) error            { return nil }
func (Nop) Update(time.Duration)                   {}
func (Nop) ShowNotification(string, time.Duration) {}
func (Nop) Close() error                           { return nil }
