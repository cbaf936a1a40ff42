package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/superfly/fsm"

	"github.com/pixelkit/bgremover/pkg/errors"
	appfsm "github.com/pixelkit/bgremover/pkg/fsm"
	"github.com/pixelkit/bgremover/pkg/security"
)

var (
	processBorder    bool
	processColor     string
	processThickness int
)

var processCmd = &cobra.Command{
	Use:   "process <image>",
	Short: "Remove the background of an image, optionally add a border, and save it",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().BoolVar(&processBorder, "border", false, "Apply a border after background removal")
	processCmd.Flags().StringVar(&processColor, "border-color", "#000000", "Border color as #RRGGBB")
	processCmd.Flags().IntVar(&processThickness, "border-thickness", 5, "Border thickness in pixels (1-20)")
	processCmd.Flags().String("fsm-db-path", "", "FSM BoltDB directory (temporary when empty)")
	viper.BindPFlag("fsm-db-path", processCmd.Flags().Lookup("fsm-db-path"))
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	input := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	saver, err := newSaver(ctx, cfg)
	if err != nil {
		return err
	}

	dbPath, cleanup, err := fsmDir(cfg.FSMDBPath)
	if err != nil {
		return err
	}
	defer cleanup()

	manager, err := fsm.New(fsm.Config{DBPath: dbPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	sess := sessionFactory(cfg, stderrNotifier(cmd.ErrOrStderr()))()
	defer sess.Close()

	machine := appfsm.NewMachine(sess, security.NewValidator(cfg.MaxFileSize), saver)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	req := &appfsm.ProcessRequest{
		InputPath:       input,
		ApplyBorder:     processBorder,
		BorderColor:     processColor,
		BorderThickness: processThickness,
	}
	resp := &appfsm.ProcessResponse{}

	version, err := start(ctx, sess.ID(), fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm started", "version", version)

	waitErr := manager.Wait(ctx, version)
	result := machine.Result()
	if waitErr != nil || result.Status != appfsm.StateComplete {
		if result.ErrorMessage != "" {
			return fmt.Errorf("%s", result.ErrorMessage)
		}
		if waitErr != nil {
			return errors.Wrap(waitErr, "FSM execution failed")
		}
		return fmt.Errorf("workflow ended in state %q", result.Status)
	}

	slog.Info("process completed", "status", result.Status, "location", result.Location, "border", result.BorderApplied)
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Saved: %s\n", result.Location)

	return nil
}
