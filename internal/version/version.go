// Package version описывает сборку сервиса. Значения проставляются через -ldflags:
//
//	-X github.com/vladislavdragonenkov/orders/internal/version.version=v1.2.0
//	-X github.com/vladislavdragonenkov/orders/internal/version.commit=$(git rev-parse HEAD)
//	-X github.com/vladislavdragonenkov/orders/internal/version.date=$(date -u +%FT%TZ)
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

const unknown = "unknown"

// Info — сведения о сборке.
type Info struct {
	Version   string
	Commit    string
	Date      string
	GoVersion string
}

// Get возвращает сведения о сборке. Без -ldflags commit и date берутся из VCS-меток,
// которые go build пишет в бинарник.
func Get() Info {
	info := Info{Version: version, Commit: commit, Date: date, GoVersion: runtime.Version()}
	if build, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range build.Settings {
			switch {
			case setting.Key == "vcs.revision" && info.Commit == "":
				info.Commit = setting.Value
			case setting.Key == "vcs.time" && info.Date == "":
				info.Date = setting.Value
			}
		}
	}
	if info.Commit == "" {
		info.Commit = unknown
	}
	if info.Date == "" {
		info.Date = unknown
	}
	return info
}

func (i Info) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s go=%s", i.Version, i.Commit, i.Date, i.GoVersion)
}

// GetVersion возвращает только версию, без обращения к build info.
func GetVersion() string { return version }

func String() string { return Get().String() }

// NewCollector отдаёт метрику orders_build_info со значением 1 и сведениями о сборке в лейблах.
func NewCollector() prometheus.Collector {
	info := Get()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orders_build_info",
		Help: "Build information of the order service.",
		ConstLabels: prometheus.Labels{
			"version":    info.Version,
			"commit":     info.Commit,
			"date":       info.Date,
			"go_version": info.GoVersion,
		},
	})
	gauge.Set(1)
	return gauge
}
