package gormstorage

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/urbandriving/engine/internal/model"
	"github.com/urbandriving/engine/internal/model/convert"
	v1 "github.com/urbandriving/engine/internal/storage/memory/export/v1"
	"github.com/urbandriving/engine/pkg/core"
)

var ErrEpisodeNotFound = errors.New("episode not found")

// LoadEpisode reads a recorded episode back into the form the JSON export is
// built from. The summary is nil if the episode never ended.
func LoadEpisode(db *gorm.DB, id uint) (*v1.EpisodeData, error) {
	var ep model.Episode
	err := db.Preload("Statics", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("static_index ASC")
	}).Preload("Objects", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("id ASC")
	}).First(&ep, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrEpisodeNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting episode: %w", err)
	}

	var ticks []model.Tick
	if err := db.Where("episode_id = ?", id).Order("frame ASC").Find(&ticks).Error; err != nil {
		return nil, fmt.Errorf("error getting ticks: %w", err)
	}
	var states []model.ObjectState
	if err := db.Where("episode_id = ?", id).Order("frame ASC, id ASC").Find(&states).Error; err != nil {
		return nil, fmt.Errorf("error getting object states: %w", err)
	}
	var cols []model.Collision
	if err := db.Where("episode_id = ?", id).Order("frame ASC, id ASC").Find(&cols).Error; err != nil {
		return nil, fmt.Errorf("error getting collisions: %w", err)
	}

	records := make([]core.TickRecord, len(ticks))
	byFrame := make(map[int]int, len(ticks))
	for i, t := range ticks {
		records[i] = core.TickRecord{
			EpisodeID: id,
			Time:      t.Frame,
			Reward:    t.Reward,
			Done:      t.Done,
		}
		byFrame[t.Frame] = i
	}
	for _, s := range states {
		i, ok := byFrame[s.Frame]
		if !ok {
			continue
		}
		records[i].States = append(records[i].States, convert.ObjectStateToCore(s))
		records[i].Actions = append(records[i].Actions, convert.ActionFromJSON(s.Action))
	}
	for _, c := range cols {
		if i, ok := byFrame[c.Frame]; ok {
			records[i].Collisions = append(records[i].Collisions, convert.CollisionToCore(c))
		}
	}

	e := convert.EpisodeToCore(ep)
	data := &v1.EpisodeData{Episode: &e, Ticks: records}
	if s, ok := convert.SummaryFromEpisode(ep); ok {
		data.Summary = &s
	}
	return data, nil
}

// ListEpisodes returns the stored episodes, newest first, without their statics
// and objects.
func ListEpisodes(db *gorm.DB) ([]model.Episode, error) {
	var eps []model.Episode
	if err := db.Order("id DESC").Find(&eps).Error; err != nil {
		return nil, fmt.Errorf("error listing episodes: %w", err)
	}
	return eps, nil
}
