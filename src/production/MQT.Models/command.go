package mqtmodels

import "fmt"

// DeviceCommand is the action a device is asked to perform
type DeviceCommand string

const (
	CommandIrrigate      DeviceCommand = "RIEGO"
	CommandConfigSet     DeviceCommand = "CONFIG_SET"
	CommandReboot        DeviceCommand = "REBOOT"
	CommandConfigReset   DeviceCommand = "CONFIG_RESET"
	CommandForceRead     DeviceCommand = "FORCE_READ"
	CommandSetLightColor DeviceCommand = "SET_LIGHT_COLOR"
)

var knownCommands = map[DeviceCommand]struct{}{
	CommandIrrigate:      {},
	CommandConfigSet:     {},
	CommandReboot:        {},
	CommandConfigReset:   {},
	CommandForceRead:     {},
	CommandSetLightColor: {},
}

func (c DeviceCommand) Valid() bool {
	_, ok := knownCommands[c]
	return ok
}

func ParseDeviceCommand(s string) (DeviceCommand, error) {
	c := DeviceCommand(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown device command %q", s)
	}
	return c, nil
}

// CONFIG_SET parameter keys
const (
	ParamNewUser  = "new_user"
	ParamNewPass  = "new_pass"
	ParamNewTopic = "new_topic"
)

// CommandPayload is the JSON body published on a command or provisioning topic
type CommandPayload struct {
	Command    DeviceCommand          `json:"command"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}
