package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

// ChartArchive stores rendered charts.
type ChartArchive interface {
	SaveChart(ctx context.Context, period domain.Period, png []byte, at time.Time) (string, error)
	ListCharts(ctx context.Context) ([]domain.BlobInfo, error)
}

// ChartService renders trend charts and archives them when an archive is
// wired.
type ChartService struct {
	renderer domain.ChartRenderer
	archive  ChartArchive
	symbols  []string
	logger   *slog.Logger
	now      func() time.Time
}

// NewChartService creates a ChartService. symbols is the default set drawn
// when a caller passes none; archive may be nil.
func NewChartService(renderer domain.ChartRenderer, archive ChartArchive, symbols []string, logger *slog.Logger) *ChartService {
	return &ChartService{
		renderer: renderer,
		archive:  archive,
		symbols:  symbols,
		logger:   logger.With(slog.String("component", "chart_service")),
		now:      time.Now,
	}
}

// Render draws the chart as PNG. An archive failure is logged and the image
// is still returned.
func (s *ChartService) Render(ctx context.Context, period domain.Period, symbols []string) ([]byte, error) {
	if len(symbols) == 0 {
		symbols = s.symbols
	}
	png, err := s.renderer.Render(ctx, period, symbols)
	if err != nil {
		return nil, fmt.Errorf("chart_service: render %s: %w", period, err)
	}

	if s.archive != nil {
		path, err := s.archive.SaveChart(ctx, period, png, s.now())
		if err != nil {
			s.logger.WarnContext(ctx, "archive chart failed", slog.String("error", err.Error()))
		} else {
			s.logger.DebugContext(ctx, "chart archived", slog.String("path", path))
		}
	}
	return png, nil
}

// List returns archived charts, or nothing when no archive is wired.
func (s *ChartService) List(ctx context.Context) ([]domain.BlobInfo, error) {
	if s.archive == nil {
		return []domain.BlobInfo{}, nil
	}
	infos, err := s.archive.ListCharts(ctx)
	if err != nil {
		return nil, fmt.Errorf("chart_service: list: %w", err)
	}
	return infos, nil
}
