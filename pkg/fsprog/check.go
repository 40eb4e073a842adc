package fsprog

import (
	"errors"
	"fmt"
	"slices"
)

// Check verifies the cross-references between the derived sets and the
// variable arena. It returns every violation found, joined.
func (p *Program) Check() error {
	errs := p.descriptorSetErrors()
	errs = append(errs, p.fileErrors()...)
	return errors.Join(errs...)
}

func (p *Program) kindOf(errs *[]error, set string, idx Index) (Kind, bool) {
	if idx < 0 || int(idx) >= len(p.variables) {
		*errs = append(*errs, fmt.Errorf("%s: %w: %d", set, ErrDanglingIndex, idx))
		return 0, false
	}
	return p.variables[idx].Kind, true
}

// descriptorSetErrors covers the active descriptor sets and mapped bases.
// The mutation API keeps these consistent for every program it builds.
func (p *Program) descriptorSetErrors() []error {
	var errs []error
	for _, idx := range p.activeFileFDs {
		if k, ok := p.kindOf(&errs, "active_file_fds", idx); ok && (!k.IsDescriptor() || k == KindDir) {
			errs = append(errs, fmt.Errorf("active_file_fds: v%d has kind %s", idx, k))
		}
		if !slices.Contains(p.activeFDs, idx) {
			errs = append(errs, fmt.Errorf("active_file_fds: v%d missing from active_fds", idx))
		}
	}
	for _, idx := range p.activeDirFDs {
		if k, ok := p.kindOf(&errs, "active_dir_fds", idx); ok && k != KindDir {
			errs = append(errs, fmt.Errorf("active_dir_fds: v%d has kind %s", idx, k))
		}
		if !slices.Contains(p.activeFDs, idx) {
			errs = append(errs, fmt.Errorf("active_dir_fds: v%d missing from active_fds", idx))
		}
	}
	for _, idx := range p.activeFDs {
		k, ok := p.kindOf(&errs, "active_fds", idx)
		if !ok {
			continue
		}
		inFile, inDir := slices.Contains(p.activeFileFDs, idx), slices.Contains(p.activeDirFDs, idx)
		if k.IsDescriptor() && inFile == inDir {
			errs = append(errs, fmt.Errorf("active_fds: v%d is not partitioned by kind", idx))
		}
	}
	for _, idx := range p.activeMapBases {
		if k, ok := p.kindOf(&errs, "active_map_base_idx", idx); ok && k != KindMmap {
			errs = append(errs, fmt.Errorf("active_map_base_idx: v%d has kind %s", idx, k))
		}
	}
	return errs
}

// fileErrors covers the tracked file objects: cache partitions and the
// kind of each descriptor variable.
func (p *Program) fileErrors() []error {
	var errs []error
	var dirs, nonDirs int
	for _, f := range p.availFiles {
		switch f.FType {
		case KindDir:
			if dirs >= len(p.availDirs) || !p.availDirs[dirs].Equal(f) {
				errs = append(errs, fmt.Errorf("avail_dirs: %s out of step with avail_files", f.RelPath))
			}
			dirs++
		case KindFile, KindSymlink, KindFifo:
			if nonDirs >= len(p.availNonDirs) || !p.availNonDirs[nonDirs].Equal(f) {
				errs = append(errs, fmt.Errorf("avail_non_dirs: %s out of step with avail_files", f.RelPath))
			}
			nonDirs++
		case KindNone, KindMmap, KindUnknown:
			errs = append(errs, fmt.Errorf("avail_files: %s has invalid type %s", f.RelPath, f.FType))
			p.kindOf(&errs, "avail_files", f.DescriptorIndex)
			continue
		}
		// the descriptor variable carries the file's own kind
		if k, ok := p.kindOf(&errs, "avail_files", f.DescriptorIndex); ok && k != f.FType {
			errs = append(errs, fmt.Errorf("avail_files: %s: v%d has kind %s, want %s",
				f.RelPath, f.DescriptorIndex, k, f.FType))
		}
	}
	if dirs != len(p.availDirs) || nonDirs != len(p.availNonDirs) {
		errs = append(errs, fmt.Errorf("file caches hold %d dirs and %d non-dirs, avail_files implies %d and %d",
			len(p.availDirs), len(p.availNonDirs), dirs, nonDirs))
	}
	return errs
}
