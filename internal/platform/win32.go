package platform

import "strings"

// win32DiskDrive mirrors the Win32_DiskDrive columns we query.
type win32DiskDrive struct {
	DeviceID      string
	Model         string
	InterfaceType string
	MediaType     string
	Size          uint64
}

const win32DiskQuery = "SELECT DeviceID, Model, InterfaceType, MediaType, Size FROM Win32_DiskDrive"

func fromWin32(drives []win32DiskDrive) []Disk {
	disks := make([]Disk, 0, len(drives))
	for _, d := range drives {
		media := strings.ToLower(d.MediaType)
		disks = append(disks, Disk{
			ID:   d.DeviceID,
			Name: strings.TrimSpace(d.Model),
			// card readers often report as fixed media over USB
			Removable: d.InterfaceType == "USB" || strings.Contains(media, "external") || strings.Contains(media, "removable"),
			SizeBytes: d.Size,
		})
	}
	return disks
}
