package imtypes

import "strings"

// DeviceType is the client platform reported at REGISTER time (§3).
type DeviceType string

const (
	DeviceAndroid DeviceType = "android"
	DeviceIOS     DeviceType = "ios"
	DeviceWeb     DeviceType = "web"
	DeviceMac     DeviceType = "mac"
	DeviceWin     DeviceType = "win"
	DeviceLinux   DeviceType = "linux"
)

// DeviceGroup is the mutual-exclusion equivalence class a DeviceType
// maps into (§3).
type DeviceGroup string

const (
	GroupMobile  DeviceGroup = "mobile"
	GroupDesktop DeviceGroup = "desktop"
	GroupWeb     DeviceGroup = "web"
)

// GroupOf maps a device type to its device group. Unknown device
// types fall back to GroupWeb, the least privileged group, rather
// than panicking - gateways must keep accepting connections from
// clients newer than the deployed code.
func GroupOf(dt DeviceType) DeviceGroup {
	switch DeviceType(strings.ToLower(string(dt))) {
	case DeviceAndroid, DeviceIOS:
		return GroupMobile
	case DeviceMac, DeviceWin, DeviceLinux:
		return GroupDesktop
	case DeviceWeb:
		return GroupWeb
	default:
		return GroupWeb
	}
}
