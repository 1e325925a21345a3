package main

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/parsec-core/pkg/certstore"
	"github.com/cuemby/parsec-core/pkg/types"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Inspect the device's certificate store",
}

var showLastTimestampsCmd = &cobra.Command{
	Use:   "show-last-timestamps",
	Short: "Print the most recently observed certificate timestamp per topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDevice(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		var last types.PerTopicLastTimestamps
		err = d.certs.ForRead(func(g *certstore.ReadGuard) error {
			var readErr error
			last, readErr = g.LastTimestamps()
			return readErr
		})
		if err != nil {
			return err
		}

		if last.Common != nil {
			fmt.Printf("common:           %s\n", last.Common.String())
		} else {
			fmt.Println("common:           (none)")
		}
		if last.Sequester != nil {
			fmt.Printf("sequester:        %s\n", last.Sequester.String())
		} else {
			fmt.Println("sequester:        (none)")
		}
		if last.ShamirRecovery != nil {
			fmt.Printf("shamir_recovery:  %s\n", last.ShamirRecovery.String())
		} else {
			fmt.Println("shamir_recovery:  (none)")
		}
		if len(last.Realm) == 0 {
			fmt.Println("realm:            (none)")
		}
		for realm, ts := range last.Realm {
			fmt.Printf("realm %s: %s\n", realm, ts.String())
		}
		return nil
	},
}

var verifyKeyCmd = &cobra.Command{
	Use:   "verify-key <device-id>",
	Short: "Print the current verify key recorded for a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid device id %q: %w", args[0], err)
		}
		deviceID := types.DeviceID(rawID)

		d, err := openDevice(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		var key types.VerifyKey
		var found bool
		err = d.certs.ForRead(func(g *certstore.ReadGuard) error {
			var readErr error
			key, found, readErr = g.DeviceVerifyKey(deviceID)
			return readErr
		})
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no verify key on record for device %s", deviceID)
		}

		fmt.Println(hex.EncodeToString(key[:]))
		return nil
	},
}

func init() {
	certCmd.AddCommand(showLastTimestampsCmd)
	certCmd.AddCommand(verifyKeyCmd)
}
