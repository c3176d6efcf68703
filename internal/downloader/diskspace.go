package downloader

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/tanq16/vdl/internal/utils"
)

// checkFreeSpace fails when the volume holding dir cannot take need more
// bytes. An unreadable volume is not treated as full.
func checkFreeSpace(dir string, need int64) error {
	if need <= 0 {
		return nil
	}
	usage, err := disk.Usage(dir)
	if err != nil {
		log.Debug().Str("op", "downloader/diskspace").Err(err).Msgf("could not read disk usage for %s", dir)
		return nil
	}
	if usage.Free < uint64(need) {
		return fmt.Errorf("%w: need %s, %s free", utils.ErrInsufficientSpace, utils.FormatBytes(uint64(need)), utils.FormatBytes(usage.Free))
	}
	return nil
}
