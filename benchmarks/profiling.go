package benchmarks

import (
	"os"
	"path"
	"runtime"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

// startProfiling starts the CPU profile, the returned function stops it and
// writes the heap profile
func startProfiling(dir, cpuprofile, memprofile string, logger logrus.FieldLogger) (func(), error) {
	var cpuFile *os.File
	if cpuprofile != "" {
		cpuProfPath := path.Join(dir, cpuprofile)
		logger.WithField("path", cpuProfPath).Info("profiling CPU")
		f, err := os.Create(cpuProfPath)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, err
		}
		cpuFile = f
	}

	return func() {
		if cpuFile != nil {
			pprof.StopCPUProfile()
			cpuFile.Close()
		}
		if memprofile == "" {
			return
		}
		memProfPath := path.Join(dir, memprofile)
		logger.WithField("path", memProfPath).Info("profiling memory")
		f, err := os.Create(memProfPath)
		if err != nil {
			logger.WithError(err).Error("could not create memory profile")
			return
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			logger.WithError(err).Error("could not write memory profile")
		}
	}, nil
}
