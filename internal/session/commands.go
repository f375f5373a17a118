package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matthewbaird/pagecomposer/internal/geometry"
	"github.com/matthewbaird/pagecomposer/internal/rpc"
)

// Commands served to the peer.
const (
	CommandPing          = "ping"
	CommandGetPage       = "getPage"
	CommandParsePage     = "parsePage"
	CommandSetViewport   = "setViewport"
	CommandDragStart     = "dragStart"
	CommandDragMove      = "dragMove"
	CommandDragDrop      = "dragDrop"
	CommandDragCancel    = "dragCancel"
	CommandMoveComponent = "moveComponent"
	CommandGetContainer  = "getContainer"
)

// RegisterCommands registers the session's commands on its channel.
func (s *Session) RegisterCommands() error {
	commands := map[string]rpc.HandlerFunc{
		CommandPing:          s.handlePing,
		CommandGetPage:       s.handleGetPage,
		CommandParsePage:     s.handleParsePage,
		CommandSetViewport:   s.handleSetViewport,
		CommandDragStart:     s.handleDragStart,
		CommandDragMove:      s.handleDragMove,
		CommandDragDrop:      s.handleDragDrop,
		CommandDragCancel:    s.handleDragCancel,
		CommandMoveComponent: s.handleMoveComponent,
		CommandGetContainer:  s.handleGetContainer,
	}
	for name, fn := range commands {
		if err := s.channel.Register(name, s.touching(fn)); err != nil {
			return fmt.Errorf("session %s: %w", s.ID, err)
		}
	}
	return nil
}

func (s *Session) touching(fn rpc.HandlerFunc) rpc.HandlerFunc {
	return func(ctx context.Context, args []json.RawMessage) (any, error) {
		s.Touch()
		return fn(ctx, args)
	}
}

func (s *Session) handlePing(context.Context, []json.RawMessage) (any, error) {
	return "pong", nil
}

func (s *Session) handleGetPage(context.Context, []json.RawMessage) (any, error) {
	return s.Page(), nil
}

// parsePage(html)
func (s *Session) handleParsePage(ctx context.Context, args []json.RawMessage) (any, error) {
	var markup string
	if err := rpc.Arg(args, 0, &markup); err != nil {
		return nil, err
	}
	return s.ParseHTML(ctx, markup)
}

// setViewport(viewport)
func (s *Session) handleSetViewport(_ context.Context, args []json.RawMessage) (any, error) {
	var v geometry.Viewport
	if err := rpc.Arg(args, 0, &v); err != nil {
		return nil, err
	}
	s.SetViewport(v)
	return nil, nil
}

// dragStart(componentID, point)
func (s *Session) handleDragStart(ctx context.Context, args []json.RawMessage) (any, error) {
	var id string
	var at geometry.Point
	if err := rpc.Arg(args, 0, &id); err != nil {
		return nil, err
	}
	if err := rpc.Arg(args, 1, &at); err != nil {
		return nil, err
	}
	return nil, s.DragStart(ctx, id, at)
}

// dragMove(point)
func (s *Session) handleDragMove(ctx context.Context, args []json.RawMessage) (any, error) {
	var at geometry.Point
	if err := rpc.Arg(args, 0, &at); err != nil {
		return nil, err
	}
	return nil, s.DragMove(ctx, at)
}

// dragDrop(containerID, nextComponentID?)
func (s *Session) handleDragDrop(ctx context.Context, args []json.RawMessage) (any, error) {
	var containerID, nextID string
	if err := rpc.Arg(args, 0, &containerID); err != nil {
		return nil, err
	}
	if len(args) > 1 {
		if err := rpc.Arg(args, 1, &nextID); err != nil {
			return nil, err
		}
	}
	return s.DragDrop(ctx, containerID, nextID)
}

func (s *Session) handleDragCancel(ctx context.Context, _ []json.RawMessage) (any, error) {
	return nil, s.DragCancel(ctx)
}

// moveComponent(componentID, containerID, nextComponentID?)
func (s *Session) handleMoveComponent(ctx context.Context, args []json.RawMessage) (any, error) {
	var componentID, containerID, nextID string
	if err := rpc.Arg(args, 0, &componentID); err != nil {
		return nil, err
	}
	if err := rpc.Arg(args, 1, &containerID); err != nil {
		return nil, err
	}
	if len(args) > 2 {
		if err := rpc.Arg(args, 2, &nextID); err != nil {
			return nil, err
		}
	}
	return s.MoveComponent(ctx, componentID, containerID, nextID)
}

// getContainer(id)
func (s *Session) handleGetContainer(ctx context.Context, args []json.RawMessage) (any, error) {
	var id string
	if err := rpc.Arg(args, 0, &id); err != nil {
		return nil, err
	}
	return s.GetContainer(ctx, id)
}
