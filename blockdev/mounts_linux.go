//go:build linux

package blockdev

import (
	"bufio"
	"os"
	"strings"
)

// mountpointOf reports where a device (or one of its partitions) is mounted,
// or "" if it is not. Regular files always report "".
func mountpointOf(dev string) string {
	if !strings.HasPrefix(dev, "/dev/") {
		return ""
	}
	f, err := os.Open("/proc/self/mounts")
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		// format: <src> <target> <fstype> <opts> ...
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		src, tgt := fields[0], fields[1]
		if src == dev {
			return tgt
		}
		// Partitions of the whole device count too: sdb -> sdb1, nvme0n1 -> nvme0n1p2.
		if strings.HasPrefix(src, dev) {
			rest := src[len(dev):]
			if rest != "" && (rest[0] == 'p' || (rest[0] >= '0' && rest[0] <= '9')) {
				return tgt
			}
		}
	}
	return ""
}
