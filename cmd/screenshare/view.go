package main

import (
	"context"
	"errors"
	"fmt"
	"screenshare/core"
	"screenshare/internal/ui"
	"screenshare/media"
	"screenshare/negotiation"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagViewRoom   string
	flagViewRecord string
	flagViewStay   bool
)

var viewCmd = &cobra.Command{
	Use:     "view",
	Aliases: []string{"v"},
	Short:   "View the screen shared in a room",
	Long: `Join a room and view whatever its sharer is showing. Received video can be
recorded to an IVF file (VP8 only); otherwise only stream statistics are shown.

Examples:
  screenshare view --room room_k3j9x0a2b
  screenshare view --room room_k3j9x0a2b --record out.ivf`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := core.ValidateRoomID(flagViewRoom); err != nil {
			return err
		}

		stats := media.NewStats()
		factories := []media.HandlerFactory{stats.Factory()}
		if flagViewRecord != "" {
			factories = append(factories, media.IVFRecorder(flagViewRecord))
		}

		s, err := newSession(ctx, viewOnly{}, media.NewTrackRenderer(factories...))
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.machine.Join(flagViewRoom); err != nil {
			return err
		}
		ui.PrintInfof("%s Joined %s, waiting for the sharer...", ui.IconWaiting, flagViewRoom)

		return runView(ctx, s, stats)
	},
}

// viewOnly is the capture source of a viewer; it never has anything to share.
type viewOnly struct{}

func (viewOnly) Acquire(context.Context, negotiation.Constraints) (negotiation.MediaStream, error) {
	return nil, core.ErrNoSourceAvailable
}

func runView(ctx context.Context, s *session, stats *media.Stats) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	watched := false
	for {
		select {
		case <-s.client.Done():
			return errors.New("relay connection lost")

		case state := <-s.states:
			switch state {
			case negotiation.StateViewingConnected:
				watched = true
				ui.PrintStatus(state.String(), "Receiving the shared screen")
			case negotiation.StateStopped:
				if watched {
					fmt.Println(ui.StatsView(stats.Snapshot()))
				}
				ui.PrintSuccess("The sharer stopped sharing")
				if !flagViewStay {
					return nil
				}
				ui.PrintInfo(ui.IconWaiting + " Waiting for the next share...")
			}

		case <-ticker.C:
			if s.machine.State() == negotiation.StateViewingConnected {
				fmt.Println(ui.StatsView(stats.Snapshot()))
			}

		case <-ctx.Done():
			if err := s.machine.StopSharing(); err != nil {
				return err
			}
			return nil
		}
	}
}

func init() {
	rootCmd.AddCommand(viewCmd)

	viewCmd.Flags().StringVar(&flagViewRoom, "room", "", "Room to view")
	viewCmd.Flags().StringVar(&flagViewRecord, "record", "", "Record the received video to this IVF file")
	viewCmd.Flags().BoolVar(&flagViewStay, "stay", false, "Keep waiting for a new share after the sharer stops")
	viewCmd.MarkFlagRequired("room")
}
