package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/mossy-p/reunion/internal/diagnostics"
	"github.com/mossy-p/reunion/internal/models"
)

func runDiagnose(g *globals, args []string) error {
	var role string
	flagSet := pflag.NewFlagSet("diagnose", pflag.ContinueOnError)
	flagSet.StringVar(&role, "role", string(models.SideCaller), "which side to check from: caller or callee")
	roomID, err := parseRoom(flagSet, args)
	if err != nil {
		return err
	}
	side := models.Side(role)
	if !side.Valid() {
		return fmt.Errorf("diagnose: invalid role %q", role)
	}

	client, err := g.client()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results := diagnostics.Run(ctx, client, roomID, side, nil)

	data := pterm.TableData{{"Check", "Status", "Detail"}}
	failed := false
	for _, r := range results {
		data = append(data, []string{r.Check, statusStyle(r.Status).Sprint(r.Status), r.Detail})
		failed = failed || r.Status == diagnostics.StatusError
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	if failed {
		return fmt.Errorf("room %s has errors", roomID)
	}
	return nil
}

func statusStyle(s diagnostics.Status) *pterm.Style {
	switch s {
	case diagnostics.StatusSuccess:
		return pterm.NewStyle(pterm.FgGreen)
	case diagnostics.StatusWarning:
		return pterm.NewStyle(pterm.FgYellow)
	case diagnostics.StatusError:
		return pterm.NewStyle(pterm.FgRed, pterm.Bold)
	default:
		return pterm.NewStyle(pterm.FgGray)
	}
}
