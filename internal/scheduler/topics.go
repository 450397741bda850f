package scheduler

import (
	"bufio"
	"bytes"
	"context"
	"math/rand/v2"
	"os"
	"strings"

	"shorts-gen/internal"
	"shorts-gen/internal/s3"
)

const DefaultTopic = "The nature of consciousness"

// PickTopic picks a topic uniformly from <payload>/topics.txt in the store,
// falling back to TOPICS_FILE on disk and then to DefaultTopic.
func PickTopic(ctx context.Context, s3c s3.Client, cfg internal.Config) string {
	topics := LoadTopics(ctx, s3c, cfg)
	if len(topics) == 0 {
		return DefaultTopic
	}
	return topics[rand.IntN(len(topics))]
}

func LoadTopics(ctx context.Context, s3c s3.Client, cfg internal.Config) []string {
	if s3c != nil {
		if data, _, err := s3c.GetBytes(ctx, cfg.PayloadPrefix+"topics.txt"); err == nil {
			if topics := parseTopics(data); len(topics) > 0 {
				return topics
			}
		}
	}
	if cfg.TopicsFile != "" {
		if data, err := os.ReadFile(cfg.TopicsFile); err == nil {
			return parseTopics(data)
		}
	}
	return nil
}

// parseTopics reads one topic per line, skipping blanks and # comments.
func parseTopics(data []byte) []string {
	var topics []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		topics = append(topics, line)
	}
	return topics
}
