// Command josh drives the simulation step engine from the command line.
// Program loading (DSL parsing) and the HTTP leader/worker split are
// external collaborators; this shell only wires the engine itself —
// grid construction, replicate bridge, and the step loop — behind a
// cobra command tree, the same shape inmaputil/cmd.go builds around
// InMAP's run/preproc/grid subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SchmidtDSE/josh"
	joshlog "github.com/SchmidtDSE/josh/internal/log"
)

var v = viper.New()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "josh",
		Short: "Run and inspect Josh ecological simulations",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				joshlog.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
	}
	root.PersistentFlags().Bool("verbose", false, "enable debug logging")
	root.PersistentFlags().String("config", "", "path to a .jshc config file")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))

	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the engine version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("josh engine core (step engine only)")
		},
	}
}

func newRunCmd() *cobra.Command {
	var rows, cols int
	var stepsLow, stepsHigh int64
	var cellSize float64
	var serial bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a replicate over an empty grid of the given size",
		Long: `run advances a replicate's patch grid through its configured step
window. It does not parse a Josh program — wiring compiled prototypes and
handlers into the grid is the responsibility of the embedding application
built on top of this engine.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := joshlog.Standard()
			converter := josh.NewConverter()
			prototypes := map[string]*josh.Prototype{}
			config := josh.NewConfig()
			if path := v.GetString("config"); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading config: %w", err)
				}
				if err := config.Load("default", string(data)); err != nil {
					return fmt.Errorf("parsing config: %w", err)
				}
			}

			// The bridge is constructed against a placeholder, empty grid: its
			// real extents aren't known until the simulation entity's
			// grid.low/grid.high/grid.size attributes are resolved below
			// (§4.H's step-0 specialization), and the bridge has to exist
			// before that resolution can happen because it's the Scope's
			// Bridge collaborator.
			placeholder := josh.NewPatchGrid(0, 0, 0, 0, 1)
			bridge := josh.NewEngineBridge(converter, placeholder, prototypes, config, stepsLow, stepsHigh)

			simProto := &josh.Prototype{
				TypeName: "Simulation",
				Kind:     josh.KindSimulationEntity,
				Attributes: []josh.AttributePrototype{
					intLiteralAttr("grid.lowX", 0),
					intLiteralAttr("grid.highX", int64(cols-1)),
					intLiteralAttr("grid.lowY", 0),
					intLiteralAttr("grid.highY", int64(rows-1)),
					doubleLiteralAttr("grid.size", cellSize),
				},
			}
			simInner := simProto.Build()
			sim := josh.NewShadowingEntity(simInner, simProto, converter, bridge, nil, nil, nil)
			sim.BeginEvent(josh.EventInit, stepsLow, 0)

			gridRows, gridCols, resolvedCellSize, err := josh.GridExtentsFromSimulation(sim)
			if err != nil {
				return fmt.Errorf("resolving grid extents: %w", err)
			}
			grid := josh.NewPatchGrid(gridRows, gridCols, 0, 0, resolvedCellSize)
			bridge.SetGrid(grid)

			patchProto := &josh.Prototype{TypeName: "Patch", Kind: josh.KindPatchEntity}
			prototypes[patchProto.TypeName] = patchProto
			josh.BuildPatchSet(grid, patchProto, converter, bridge, sim)

			stepper := josh.NewStepper(grid, bridge)

			for !bridge.IsComplete() {
				step := bridge.AbsoluteTimestep()
				if err := stepper.Perform(serial); err != nil {
					return err
				}
				log.WithFields(joshlog.StepFields(bridge.Replicate(), step)).Info("step complete")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 10, "grid row count")
	cmd.Flags().IntVar(&cols, "cols", 10, "grid column count")
	cmd.Flags().Int64Var(&stepsLow, "steps-low", 0, "first step index")
	cmd.Flags().Int64Var(&stepsHigh, "steps-high", 10, "last step index")
	cmd.Flags().Float64Var(&cellSize, "cell-size", 0.1, "patch cell size in degrees")
	cmd.Flags().BoolVar(&serial, "serial", false, "force serial sub-step execution")
	return cmd
}

// intLiteralAttr and doubleLiteralAttr build a constant-valued attribute
// for the simulation entity's grid.low/grid.high/grid.size meta
// attributes. Real Josh programs compile these RHS expressions from DSL
// source; this shell has no parser, so it compiles the CLI flags directly
// into a one-instruction handler instead.
func intLiteralAttr(name string, value int64) josh.AttributePrototype {
	return josh.AttributePrototype{
		Name: name,
		Handlers: josh.EventHandlers{
			josh.EventInit: josh.NewCompiledHandler(josh.PushConst(josh.IntValue(value, josh.EmptyUnits))),
		},
	}
}

func doubleLiteralAttr(name string, value float64) josh.AttributePrototype {
	return josh.AttributePrototype{
		Name: name,
		Handlers: josh.EventHandlers{
			josh.EventInit: josh.NewCompiledHandler(josh.PushConst(josh.DoubleValue(value, josh.EmptyUnits))),
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
