// imunode runs the BNO055 IMU node on a Linux host: HAL over periph I²C
// buses (or simulated sensors), heartbeat, CANopen exposure and metrics.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"imunode-go/services/config"
)

var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "BNO055 IMU node",
	Long:  "imunode brings up BNO055 sensors, publishes their vectors and exposes them over CANopen.",
}

var runCmd = &cobra.Command{
	Use:        "run",
	SuggestFor: []string{"ru", "serve", "start"},
	Short:      "run the node using the configuration file",
	Long: `run starts the node. The configuration is looked up in order:
1. path given with --config
2. $HOME/.config/imunode/config.yaml, /etc/imunode/config.yaml, ./config.yaml
Values are overridden by IMUNODE_* environment variables, e.g.
IMUNODE_CANOPEN_NODE_ID=42. Without any file a simulated sensor is used.
`,
	Example: `  imunode run --config=/etc/imunode/config.yaml
  imunode run --monitor`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		file, _ := cmd.Flags().GetString("config")
		monitor, _ := cmd.Flags().GetBool("monitor")
		debug, _ := cmd.Flags().GetBool("debug")
		return newApp(file, monitor, debug).run(cmd.Context())
	},
}

var initCmd = &cobra.Command{
	Use:        "init-config",
	SuggestFor: []string{"init", "ini"},
	Short:      "write a configuration template",
	Long: `init-config writes the default configuration as YAML.
With --print the configuration goes to stdout instead.
An existing file is only replaced with --yes.
`,
	Example: `  imunode init-config --print
  imunode init-config -o /etc/imunode/config.yaml -y`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		toStdout, _ := cmd.Flags().GetBool("print")
		out, _ := cmd.Flags().GetString("output")
		yes, _ := cmd.Flags().GetBool("yes")
		return writeConfig(cmd.OutOrStdout(), out, toStdout, yes)
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "scan the host's I²C buses for BNO055 sensors",
	Long: `probe opens every I²C bus periph can see and reads CHIP_ID at 0x28 and 0x29.
Sensors still booting do not answer and are not listed.
`,
	Example: `  imunode probe`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return scanBuses(cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().String("config", "", "configuration file path")
	runCmd.Flags().Bool("monitor", false, "print every vector to stdout")
	runCmd.Flags().Bool("debug", false, "debug logging (overrides log_level)")

	initCmd.Flags().Bool("print", false, "print the configuration to stdout")
	initCmd.Flags().StringP("output", "o", config.DefaultPath(), "output file")
	initCmd.Flags().BoolP("yes", "y", false, "overwrite an existing file")

	rootCmd.AddCommand(runCmd, initCmd, probeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
