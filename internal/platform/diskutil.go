package platform

import (
	"fmt"
	"sort"

	"howett.net/plist"
)

// diskutilList is the part of `diskutil list -plist` we need.
type diskutilList struct {
	WholeDisks []string `plist:"WholeDisks"`
}

// diskutilInfo is the part of `diskutil info -plist <disk>` we need.
type diskutilInfo struct {
	DeviceIdentifier string `plist:"DeviceIdentifier"`
	DeviceNode       string `plist:"DeviceNode"`
	MediaName        string `plist:"MediaName"`
	TotalSize        uint64 `plist:"TotalSize"`
	Size             uint64 `plist:"Size"`
	Internal         bool   `plist:"Internal"`
	Removable        bool   `plist:"Removable"`
	RemovableMedia   bool   `plist:"RemovableMedia"`
	Ejectable        bool   `plist:"Ejectable"`
	WholeDisk        bool   `plist:"WholeDisk"`
}

func parseDiskutilList(data []byte) ([]string, error) {
	var l diskutilList
	if _, err := plist.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decoding diskutil list: %w", err)
	}
	var ids []string
	for _, id := range l.WholeDisks {
		// disk0 is always the boot drive
		if id == "" || id == "disk0" {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func parseDiskutilInfo(data []byte) (Disk, error) {
	var info diskutilInfo
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return Disk{}, fmt.Errorf("decoding diskutil info: %w", err)
	}
	if info.DeviceIdentifier == "" {
		return Disk{}, fmt.Errorf("diskutil info has no device identifier")
	}
	node := info.DeviceNode
	if node == "" {
		node = "/dev/" + info.DeviceIdentifier
	}
	size := info.TotalSize
	if size == 0 {
		size = info.Size
	}
	return Disk{
		ID:        node,
		Name:      info.MediaName,
		SizeBytes: size,
		Removable: !info.Internal || info.Removable || info.RemovableMedia || info.Ejectable,
	}, nil
}
