package buildcfg

import (
	"errors"
	"fmt"
)

// BlockSize is the flash erase block size every region is aligned to.
const BlockSize = 1024

var (
	ErrMisaligned     = errors.New("not a multiple of the flash block size (1KB)")
	ErrInvertedRegion = errors.New("region ends before it starts")
)

// Layout is the derived memory map.
type Layout struct {
	FlashBase   uint32
	FlashEnd    uint32
	FlashLength uint32

	FilesystemBase   uint32
	FilesystemEnd    uint32
	FilesystemLength uint32
}

// FlashKiB returns the flash region length in KiB.
func (l Layout) FlashKiB() uint32 { return l.FlashLength / BlockSize }

// FilesystemKiB returns the filesystem region length in KiB.
func (l Layout) FilesystemKiB() uint32 { return l.FilesystemLength / BlockSize }

// Layout computes the memory map and checks that the filesystem boundary
// and both region lengths are block aligned.
func (c *Config) Layout() (Layout, error) {
	p := c.Parameters
	if p.FilesystemBoundary%BlockSize != 0 {
		return Layout{}, fmt.Errorf("filesystem boundary 0x%x is %w", p.FilesystemBoundary, ErrMisaligned)
	}

	flashEnd := c.FlashEnd()
	if flashEnd < p.FlashOrigin {
		return Layout{}, fmt.Errorf("flash: end 0x%x < origin 0x%x: %w", flashEnd, p.FlashOrigin, ErrInvertedRegion)
	}
	if p.FilesystemEnd < p.FilesystemBoundary {
		return Layout{}, fmt.Errorf("filesystem: end 0x%x < boundary 0x%x: %w", p.FilesystemEnd, p.FilesystemBoundary, ErrInvertedRegion)
	}

	l := Layout{
		FlashBase:        p.FlashOrigin,
		FlashEnd:         flashEnd,
		FlashLength:      flashEnd - p.FlashOrigin,
		FilesystemBase:   p.FilesystemBoundary,
		FilesystemEnd:    p.FilesystemEnd,
		FilesystemLength: p.FilesystemEnd - p.FilesystemBoundary,
	}
	if err := l.Check(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Check verifies that both region lengths are block multiples.
func (l Layout) Check() error {
	if l.FlashLength%BlockSize != 0 {
		return fmt.Errorf("flash length 0x%x is %w", l.FlashLength, ErrMisaligned)
	}
	if l.FilesystemLength%BlockSize != 0 {
		return fmt.Errorf("filesystem length 0x%x is %w", l.FilesystemLength, ErrMisaligned)
	}
	return nil
}
