package ai

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/samber/lo"
)

const (
	tiktokCaptionLimit = 150
	minHashtags        = 6
)

// Metadata is the per-platform text attached to an upload.
type Metadata struct {
	Title       string
	Description string
	Caption     string
	Hashtags    []string
}

var captionTemplates = []string{
	"What if %s?",
	"Have you ever wondered about %s?",
	"Why does %s fascinate us?",
	"Deep dive into %s",
	"The hidden truth about %s",
	"Ancient wisdom on %s",
	"A journey through %s",
	"Awakening to %s",
	"Reflecting on %s",
	"The essence of %s",
}

var captionEndings = []string{
	"💭 What are your thoughts?",
	"🔮 Does this resonate with you?",
	"✨ Share your perspective below",
	"",
	"",
}

var titleTemplates = []string{
	"%s - Ancient Wisdom Revealed",
	"The Truth About %s",
	"The Mystery of %s",
	"%s - A Spiritual Perspective",
	"Contemplating %s",
	"%s - Timeless Wisdom",
	"Unveiling %s",
	"The Path of %s",
}

var descriptionTemplates = []string{
	"Dive deep into %s through the lens of ancient wisdom and modern insight.",
	"A contemplative journey into the nature of %s.",
	"Uncover the hidden mysteries surrounding %s in this profound exploration.",
	"How %s transforms our understanding of reality and existence.",
	"Philosophical reflections on %s and its significance in our lives.",
}

var ctaEndings = []string{
	"What insights does this bring to your spiritual journey?",
	"Share your thoughts on this mystical exploration below.",
	"What questions arise from this contemplation?",
	"",
}

var hashtagPools = struct {
	core, esoteric, growth, platform, youtube []string
}{
	core:     []string{"#spirituality", "#awakening", "#consciousness", "#mindfulness", "#meditation", "#philosophy", "#wisdom", "#truth", "#existence", "#reality"},
	esoteric: []string{"#esoteric", "#hermetic", "#gnostic", "#mystical", "#sacred", "#transcendent"},
	growth:   []string{"#selfdiscovery", "#transformation", "#healing", "#harmony", "#peace", "#compassion"},
	platform: []string{"#shorts", "#viral", "#fyp", "#foryou", "#explore", "#deep", "#mindblowing"},
	youtube:  []string{"#youtube", "#shorts", "#philosophy", "#spirituality", "#wisdom", "#deepthoughts"},
}

// BuildMetadata fills the title, description and captions for topic.
func BuildMetadata(topic string, rnd *rand.Rand) Metadata {
	lower := strings.ToLower(topic)

	caption := fmt.Sprintf(pick(rnd, captionTemplates), lower)
	if end := pick(rnd, captionEndings); end != "" {
		caption += " " + end
	}
	tags := Hashtags(rnd)

	desc := fmt.Sprintf(pick(rnd, descriptionTemplates), lower)
	ytTags := lo.Uniq(append(append([]string{}, tags...), sample(rnd, hashtagPools.youtube, 2)...))
	if len(ytTags) > 15 {
		ytTags = ytTags[:15]
	}
	parts := []string{desc}
	if cta := pick(rnd, ctaEndings); cta != "" {
		parts = append(parts, cta)
	}
	parts = append(parts, strings.Join(ytTags, " "))

	full, kept := TrimCaption(caption, tags, tiktokCaptionLimit, minHashtags)
	return Metadata{
		Title:       fmt.Sprintf(pick(rnd, titleTemplates), topic) + " #Shorts",
		Description: strings.Join(parts, "\n\n"),
		Caption:     full,
		Hashtags:    kept,
	}
}

// Hashtags draws 8 to 12 unique tags across the pools.
func Hashtags(rnd *rand.Rand) []string {
	var tags []string
	tags = append(tags, sample(rnd, hashtagPools.core, 2+rnd.IntN(2))...)
	tags = append(tags, sample(rnd, hashtagPools.esoteric, 1+rnd.IntN(2))...)
	if rnd.Float64() < 0.6 {
		tags = append(tags, sample(rnd, hashtagPools.growth, 1+rnd.IntN(2))...)
	}
	tags = append(tags, sample(rnd, hashtagPools.platform, 1+rnd.IntN(2))...)
	tags = lo.Uniq(tags)
	if limit := 8 + rnd.IntN(5); len(tags) > limit {
		tags = tags[:limit]
	}
	return tags
}

// TrimCaption joins main and tags, dropping trailing tags while the result
// is longer than limit and more than minTags remain.
func TrimCaption(main string, tags []string, limit, minTags int) (string, []string) {
	kept := append([]string(nil), tags...)
	join := func() string {
		if len(kept) == 0 {
			return main
		}
		return main + " " + strings.Join(kept, " ")
	}
	full := join()
	for len([]rune(full)) > limit && len(kept) > minTags {
		kept = kept[:len(kept)-1]
		full = join()
	}
	return full, kept
}

func pick(rnd *rand.Rand, items []string) string {
	return items[rnd.IntN(len(items))]
}

func sample(rnd *rand.Rand, items []string, k int) []string {
	if k > len(items) {
		k = len(items)
	}
	perm := rnd.Perm(len(items))
	return lo.Map(perm[:k], func(i int, _ int) string { return items[i] })
}
