package main

import "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.DeviceCtl/cmd"

func main() {
	cmd.Execute()
}
