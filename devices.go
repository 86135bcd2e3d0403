package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/swipswaps/bbf/blockdev"
)

// deviceInfo describes one candidate device node. Partitions and loop
// devices are listed but flagged, since burn-in results only make sense
// against a whole disk.
type deviceInfo struct {
	Path       string
	WholeDisk  bool
	Reason     string
	Size       uint64
	BlockSize  uint64
	Identity   string
	Mountpoint string
}

func listDevicesCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List candidate block devices (read-only)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			infos, err := discoverDevices()
			if err != nil {
				return err
			}
			for i := range infos {
				probeDevice(&infos[i])
			}
			for _, d := range infos {
				if !d.WholeDisk && !all {
					continue
				}
				line := d.Path
				if d.Size > 0 {
					line += fmt.Sprintf("  %s  %dB blocks", human(d.Size), d.BlockSize)
				}
				if d.Identity != "" {
					line += "  " + d.Identity
				}
				if d.Mountpoint != "" {
					line += "  mounted on " + d.Mountpoint
				}
				if d.Reason != "" {
					line += "  (" + d.Reason + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include partitions and loop devices")
	return cmd
}

// probeDevice fills in size, geometry and identity where the node can be
// opened read-only. Nodes we cannot open are still listed by path.
func probeDevice(d *deviceInfo) {
	dev, err := blockdev.Open(d.Path, true, true)
	if err != nil {
		if d.Reason == "" {
			d.Reason = "not accessible"
		}
		return
	}
	defer dev.Close()
	d.Size = dev.SizeBytes()
	d.BlockSize = dev.LogicalBlockSize()
	d.Identity = dev.Identity()
	d.Mountpoint = dev.Mountpoint()
}

func discoverDevices() ([]deviceInfo, error) {
	switch runtime.GOOS {
	case "darwin":
		return discoverDarwin()
	case "linux":
		return discoverLinux()
	case "windows":
		return discoverWindows()
	default:
		return nil, fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
}

func discoverDarwin() ([]deviceInfo, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}
	infos := []deviceInfo{}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "disk") && !strings.HasPrefix(name, "rdisk") {
			continue
		}
		path := filepath.Join("/dev", name)
		// Partition if an 's' is immediately followed by a digit (disk2s1).
		isPart := false
		for i := 0; i+1 < len(name); i++ {
			if name[i] == 's' && name[i+1] >= '0' && name[i+1] <= '9' {
				isPart = true
				break
			}
		}
		if isPart {
			infos = append(infos, deviceInfo{Path: path, Reason: "partition"})
		} else {
			infos = append(infos, deviceInfo{Path: path, WholeDisk: true})
		}
	}
	return infos, nil
}

func discoverLinux() ([]deviceInfo, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}
	infos := []deviceInfo{}
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join("/dev", name)
		switch {
		case isWholeLinuxDevice(name):
			infos = append(infos, deviceInfo{Path: path, WholeDisk: true})
		case isPartitionLinux(name):
			infos = append(infos, deviceInfo{Path: path, Reason: "partition"})
		case strings.HasPrefix(name, "loop"):
			infos = append(infos, deviceInfo{Path: path, Reason: "loop device"})
		}
	}
	return infos, nil
}

func isWholeLinuxDevice(name string) bool {
	// sdX, vdX
	if len(name) == 3 && (strings.HasPrefix(name, "sd") || strings.HasPrefix(name, "vd")) && name[2] >= 'a' && name[2] <= 'z' {
		return true
	}
	// nvmeXnY
	if strings.HasPrefix(name, "nvme") && strings.Contains(name, "n") && !strings.Contains(name, "p") {
		parts := strings.Split(name, "n")
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return true
		}
	}
	// mmcblkX
	if strings.HasPrefix(name, "mmcblk") && !strings.Contains(name, "p") {
		return true
	}
	return false
}

func isPartitionLinux(name string) bool {
	// sdXN or vdXN: trailing digit
	if (strings.HasPrefix(name, "sd") || strings.HasPrefix(name, "vd")) && len(name) >= 4 {
		if name[len(name)-1] >= '0' && name[len(name)-1] <= '9' {
			return true
		}
	}
	// nvmeXnYpZ
	if strings.HasPrefix(name, "nvme") && strings.Contains(name, "n") && strings.Contains(name, "p") {
		return true
	}
	// mmcblkXpZ
	if strings.HasPrefix(name, "mmcblk") && strings.Contains(name, "p") {
		return true
	}
	return false
}

func discoverWindows() ([]deviceInfo, error) {
	infos := []deviceInfo{}
	for i := 0; i < 32; i++ {
		path := fmt.Sprintf(`\\.\PhysicalDrive%d`, i)
		f, err := os.Open(path)
		if err == nil {
			_ = f.Close()
			infos = append(infos, deviceInfo{Path: path, WholeDisk: true})
		} else if i < 8 {
			infos = append(infos, deviceInfo{Path: path, Reason: "not accessible"})
		}
	}
	return infos, nil
}
