package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/sync/errgroup"

	"github.com/urbandriving/engine/internal/env"
	"github.com/urbandriving/engine/internal/render"
)

// frameInterval paces the terminal viewer.
const frameInterval = 50 * time.Millisecond

// watch runs episodes in the terminal. q or Esc quits, p pauses.
func watch(ctx context.Context) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("creating screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("initializing screen: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var paused atomic.Bool
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		for {
			switch ev := screen.PollEvent().(type) {
			case nil:
				// screen finalized
				return nil
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC ||
					(ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
					return nil
				}
				if ev.Key() == tcell.KeyRune && ev.Rune() == 'p' {
					paused.Store(!paused.Load())
				}
			case *tcell.EventResize:
				screen.Sync()
			}
		}
	})

	g.Go(func() error {
		defer screen.Fini()
		ticker := time.NewTicker(frameInterval)
		defer ticker.Stop()
		return runWith(ctx, render.NewTerminal(screen), func(ctx context.Context, e *env.Environment, _ env.Result) error {
			if err := e.Render(); err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
				if !paused.Load() {
					return nil
				}
			}
		})
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
