package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/ringbot/pkg/routine"
)

type RoutinesCommand struct {
	Steps string `long:"steps" value-name:"ROUTINE" description:"Print the steps of one routine (name or .toml path)"`
}

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableNameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func (c *RoutinesCommand) Execute(args []string) error {
	if c.Steps != "" {
		rt, err := routine.Load(c.Steps)
		if err != nil {
			return err
		}
		printSteps(rt)
		return nil
	}

	all, err := routine.All()
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(all))
	for _, rt := range all {
		sum := rt.Summarize()
		name := rt.Name
		if name == routine.DefaultName {
			name += " *"
		}
		rows = append(rows, []string{
			name,
			strconv.Itoa(sum.Steps),
			strconv.Itoa(sum.Motions),
			strconv.Itoa(sum.Waits),
			sum.Delay.String(),
			strconv.Itoa(sum.Phase),
			rt.Description,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Routine", "Steps", "Motions", "Waits", "Delay", "Phase", "Description").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case col == 0:
				return tableNameStyle
			default:
				return tableCellStyle
			}
		})

	fmt.Println(t.Render())
	fmt.Println(dimStyle.Render("* default. Show a script with: ringbot routines --steps NAME"))
	return nil
}

func printSteps(rt routine.Routine) {
	fmt.Println(headerStyle.Render(rt.Name))
	if rt.Description != "" {
		fmt.Println(dimStyle.Render(rt.Description))
	}
	fmt.Println()
	for i, step := range rt.Steps {
		fmt.Printf("%s %s\n", dimStyle.Render(fmt.Sprintf("%3d", i+1)), step)
	}
}
