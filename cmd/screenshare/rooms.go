package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"screenshare/handlers/api/rooms"
	"screenshare/internal/ui"
	"time"

	"github.com/spf13/cobra"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the active rooms of the relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := fetchRooms(cmd.Context(), cfg.ServerURL)
		if err != nil {
			return err
		}

		rows := make([]ui.RoomRow, 0, len(list))
		for _, r := range list {
			rows = append(rows, ui.RoomRow{ID: r.ID, Users: r.Users, Sharing: r.Sharing, LastActive: r.LastActive})
		}
		fmt.Println(ui.RoomTableView(rows, time.Now()))
		return nil
	},
}

func fetchRooms(ctx context.Context, serverURL string) ([]rooms.RoomSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/api/rooms", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list rooms: relay returned %s", resp.Status)
	}
	var list []rooms.RoomSummary
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return list, nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)
}
