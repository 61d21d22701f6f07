package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tandem/internal/device"
)

// DeviceInfo is the output of the device command.
type DeviceInfo struct {
	DeviceID   string            `json:"deviceId"`
	LocalState string            `json:"localState"`
	Descriptor device.Descriptor `json:"descriptor"`
}

// NewDeviceCommand creates the device command.
func NewDeviceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Show this installation's device id",
		Long: `Show this installation's device id, generating it on first use.

The id is kept in the local state file and identifies the installation,
not the user. Every account signed in here shares it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			info := DeviceInfo{
				DeviceID:   e.deviceID,
				LocalState: e.cfg.LocalState,
				Descriptor: device.Describe(Version),
			}
			return e.out.Emit(info, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s\n  platform: %s\n  agent:    %s\n  state:    %s\n",
					info.DeviceID, info.Descriptor.Platform, info.Descriptor.UserAgent, info.LocalState)
				return err
			})
		},
	}
}
