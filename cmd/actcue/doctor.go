package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/actcue/actcue/internal/doctor"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run readiness diagnostics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newAppRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			holder := &tokenHolder{}
			client := rt.backendClient(holder)
			sess, err := loadAuthSession(rt, client)
			if err == nil && sess != nil {
				holder.set(sess)
			}

			report := doctor.Run(cmd.Context(), rt.cfg, client)
			fmt.Println(report.String())
			if !report.OK() {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
}
