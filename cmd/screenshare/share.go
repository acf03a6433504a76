package main

import (
	"context"
	"errors"
	"fmt"
	"screenshare/core"
	"screenshare/internal/ui"
	"screenshare/media"
	"screenshare/negotiation"

	"github.com/spf13/cobra"
)

var (
	flagShareRoom string
	flagShareIVF  string
	flagShareLoop bool
)

var shareCmd = &cobra.Command{
	Use:     "share",
	Aliases: []string{"s"},
	Short:   "Share a video file as your screen",
	Long: `Share an IVF (VP8, VP9 or AV1) file with the viewers of a room. The share
starts as soon as another participant is in the room.

Examples:
  screenshare share --ivf demo.ivf
  screenshare share --room room_k3j9x0a2b --ivf demo.ivf --loop`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		roomID, err := resolveRoom(ctx, flagShareRoom)
		if err != nil {
			return err
		}

		s, err := newSession(ctx, &media.FileSource{Path: flagShareIVF, Loop: flagShareLoop}, media.NewTrackRenderer())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.machine.Join(roomID); err != nil {
			return err
		}
		fmt.Println(ui.RoomBoxView(roomID, cfg.ServerURL))
		ui.PrintInfo(ui.IconWaiting + " Waiting for a viewer to join...")

		return runShare(ctx, s)
	},
}

func runShare(ctx context.Context, s *session) error {
	started := false

	for {
		select {
		case <-s.client.Done():
			return errors.New("relay connection lost")

		case members := <-s.members:
			if started || len(members) < 2 || !s.machine.State().Ready() {
				continue
			}
			ui.PrintInfof("%s %d participants in room, starting share", ui.IconPeer, len(members))
			if err := s.machine.StartSharing(ctx); err != nil {
				return err
			}
			started = true

		case state := <-s.states:
			switch state {
			case negotiation.StateSharingConnected:
				ui.PrintStatus(state.String(), "Viewer connected")
			case negotiation.StateJoined:
				if started {
					return core.ErrSharerConflict
				}
			case negotiation.StateStopped:
				ui.PrintSuccess("Sharing ended")
				return nil
			}

		case <-ctx.Done():
			if err := s.machine.StopSharing(); err != nil {
				return err
			}
			ui.PrintSuccess("Sharing stopped")
			return nil
		}
	}
}

func init() {
	rootCmd.AddCommand(shareCmd)

	shareCmd.Flags().StringVar(&flagShareRoom, "room", "", "Room to share in (generated when empty)")
	shareCmd.Flags().StringVar(&flagShareIVF, "ivf", "", "IVF file to share")
	shareCmd.Flags().BoolVar(&flagShareLoop, "loop", false, "Restart the file when it ends")
	shareCmd.MarkFlagRequired("ivf")
}
