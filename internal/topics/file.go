package topics

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/util"
)

// LoadTopicMap reads a {petitionId: topic} file. A missing file yields an empty map.
func LoadTopicMap(path string) (model.TopicMap, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.TopicMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read topic map: %w", err)
	}

	tm := model.TopicMap{}
	if err := json.Unmarshal(data, &tm); err != nil {
		return nil, fmt.Errorf("parse topic map %s: %w", path, err)
	}
	return tm, nil
}

// SaveTopicMap writes a topic map atomically with keys sorted
func SaveTopicMap(path string, tm model.TopicMap) error {
	if tm == nil {
		tm = model.TopicMap{}
	}
	data, err := json.MarshalIndent(tm, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal topic map: %w", err)
	}
	if err := util.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("save topic map: %w", err)
	}
	return nil
}
