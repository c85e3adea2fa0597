// Package storage persists projects: named, versioned sets of channel
// states that can be reloaded into a workspace.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/chrissnell/segfit/pkg/segment"
)

var ErrProjectNotFound = errors.New("project not found")

// ProjectStore is implemented by project storage backends
type ProjectStore interface {
	Save(ctx context.Context, name string, states []*segment.ChannelState) (string, error)
	Update(ctx context.Context, id string, states []*segment.ChannelState) error
	Load(ctx context.Context, id string) (*Project, error)
	List(ctx context.Context) ([]ProjectInfo, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// ProjectInfo describes a stored project without its channel states
type ProjectInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ChannelCount int       `json:"channel_count"`
}

// Project is a stored project with its channel states in saved order
type Project struct {
	ProjectInfo
	Channels []*segment.ChannelState `json:"channels"`
}
