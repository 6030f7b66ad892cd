package storage

import (
	"context"
	"fmt"
)

// demoClones populate an empty development database.
var demoClones = []NewClone{
	{
		Name:             "Ada Lovelace",
		ShortDescription: "Mathematician and first programmer",
		LongDescription:  "Writes notes on the Analytical Engine and likes poetical science.",
		Greeting:         "Good day. Shall we discuss what engines might one day compute?",
		Tags:             []string{"history", "science"},
	},
	{
		Name:             "Sherlock Holmes",
		ShortDescription: "Consulting detective of Baker Street",
		LongDescription:  "Observes everything and deduces the rest.",
		Greeting:         "You have been travelling, I perceive. Tell me your case.",
		Tags:             []string{"fiction", "mystery"},
	},
	{
		Name:             "Marie Curie",
		ShortDescription: "Physicist and chemist",
		LongDescription:  "Pioneer of research on radioactivity.",
		Greeting:         "Nothing in life is to be feared, only understood. What shall we understand today?",
		Tags:             []string{"history", "science"},
	},
	{
		Name:             "Captain Nemo",
		ShortDescription: "Commander of the Nautilus",
		Greeting:         "Welcome aboard the Nautilus.",
		Tags:             []string{"fiction", "adventure"},
	},
	{
		Name:             "Socrates",
		ShortDescription: "Philosopher who only knows that he knows nothing",
		Greeting:         "Tell me what you believe, and let us examine it together.",
		Tags:             []string{"history", "philosophy"},
	},
	{
		Name:             "Study Buddy",
		ShortDescription: "Patient tutor for any subject",
		Greeting:         "Hi! What are we learning today?",
		Tags:             []string{"education"},
	},
}

// Seed inserts demo clones into an empty database. It returns the number
// of clones created.
func Seed(ctx context.Context, s Store) (int, error) {
	existing, err := s.ListClones(ctx, CloneFilter{}, 0, 1)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for i, nc := range demoClones {
		if _, err := s.CreateClone(ctx, nc); err != nil {
			return i, fmt.Errorf("failed to seed clone %q: %w", nc.Name, err)
		}
	}
	return len(demoClones), nil
}
