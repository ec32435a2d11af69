package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"
)

func runNew(g *globals, args []string) error {
	flagSet := pflag.NewFlagSet("new", pflag.ContinueOnError)
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	client, err := g.client()
	if err != nil {
		return err
	}
	roomID, err := client.NewRoom(context.Background())
	if err != nil {
		return err
	}
	fmt.Println(roomID)
	return nil
}

func runRooms(g *globals, args []string) error {
	var openOnly bool
	flagSet := pflag.NewFlagSet("rooms", pflag.ContinueOnError)
	flagSet.BoolVar(&openOnly, "open", false, "only rooms still waiting for an answer")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	client, err := g.client()
	if err != nil {
		return err
	}
	rooms, err := client.ListRooms(context.Background(), openOnly)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		pterm.Info.Println("No rooms")
		return nil
	}

	data := pterm.TableData{{"Room", "Created", "Offer", "Answer"}}
	for _, r := range rooms {
		data = append(data, []string{
			r.RoomID,
			r.CreatedAt.Local().Format("02 Jan 15:04"),
			strconv.FormatBool(r.HasOffer),
			strconv.FormatBool(r.HasAnswer),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
