package catalog

import "storyteller/server/internal/model"

// Builtin 返回内置故事目录：一个线性冒险、一个分支数数故事、一个线性睡前故事。
// 每次调用都构造新值。
func Builtin() []model.StoryTemplate {
	return []model.StoryTemplate{
		forestAdventure(),
		countingAdventure(),
		bedtimeStars(),
	}
}

func adapt(scared, bored, confused, excited, neutral string) map[model.Mood]string {
	return map[model.Mood]string{
		model.MoodScared:   scared,
		model.MoodBored:    bored,
		model.MoodConfused: confused,
		model.MoodExcited:  excited,
		model.MoodNeutral:  neutral,
	}
}

func forestAdventure() model.StoryTemplate {
	return model.StoryTemplate{
		ID:               "forest-adventure-static",
		Title:            "The Magical Forest Adventure",
		Category:         model.CategoryAdventure,
		AgeRange:         model.AgeRange{Min: 4, Max: 8},
		Description:      "Join a friendly fox on an adventure through an enchanted forest",
		EstimatedMinutes: 8,
		Difficulty:       "simple",
		StoryType:        model.StoryTypeStatic,
		PersonaHint:      "friendly",
		Milestones: []model.Milestone{
			{
				ID:                "forest-entry",
				Title:             "Welcome to the Forest",
				Description:       "Once upon a time, there was a magical forest where friendly animals lived...",
				Required:          true,
				EmotionalTriggers: []string{"curiosity", "excitement"},
				Adaptations: adapt(
					"This forest is the safest, most beautiful place with colorful flowers and gentle sunshine everywhere.",
					"Suddenly, sparkles appear in the air and you hear the most amazing magical sounds!",
					"Let me tell you about this wonderful forest step by step, it's really simple and fun.",
					"What an incredible adventure awaits us in this absolutely magical place!",
					"Welcome to our magical forest, where every tree has a story to tell.",
				),
			},
			{
				ID:                "meet-fox",
				Title:             "Meeting the Fox",
				Description:       "A friendly fox with a bushy red tail appears and wants to be your friend...",
				Required:          true,
				EmotionalTriggers: []string{"friendship", "trust"},
				Adaptations: adapt(
					"The fox has the kindest eyes and the gentlest smile. He just wants to be your friend.",
					"The fox does a funny little dance and tells the most amazing jokes!",
					"The fox speaks slowly and clearly, making sure you understand everything.",
					"The fox is just as excited as you are and can't wait to show you around!",
					"The fox introduces himself politely and asks if you'd like to explore together.",
				),
			},
			{
				ID:                "forest-exploration",
				Title:             "Exploring Together",
				Description:       "You and the fox discover beautiful flowers, singing birds, and sparkling streams...",
				Required:          false,
				EmotionalTriggers: []string{"wonder", "discovery"},
				Adaptations: adapt(
					"Everything you see is peaceful and safe, like a beautiful garden.",
					"You discover a hidden treasure chest filled with magical surprises!",
					"The fox explains each wonderful thing you see in simple, easy words.",
					"Every step reveals something more amazing than the last!",
					"Together you explore the forest's many wonders at a comfortable pace.",
				),
			},
			{
				ID:                "story-conclusion",
				Title:             "A Perfect Ending",
				Description:       "Your adventure ends with new friendship and wonderful memories...",
				Required:          true,
				EmotionalTriggers: []string{"satisfaction", "accomplishment"},
				Adaptations: adapt(
					"You feel completely safe and happy, knowing you've made a wonderful friend.",
					"What an absolutely incredible adventure you've just completed!",
					"You did such a great job exploring and learning new things.",
					"That was the most amazing forest adventure anyone could ever have!",
					"You and the fox have become great friends and had a lovely time together.",
				),
			},
		},
		Characters:  []string{"friendly-fox"},
		Settings:    []string{"enchanted-forest"},
		MoralLesson: "Friendship and kindness make every adventure better",
	}
}

func countingAdventure() model.StoryTemplate {
	return model.StoryTemplate{
		ID:               "counting-adventure-dynamic",
		Title:            "The Counting Treasure Hunt",
		Category:         model.CategoryEducational,
		AgeRange:         model.AgeRange{Min: 3, Max: 6},
		Description:      "Learn numbers while searching for magical treasures with a wise owl",
		EstimatedMinutes: 10,
		Difficulty:       "simple",
		StoryType:        model.StoryTypeDynamic,
		PersonaHint:      "wise",
		Milestones: []model.Milestone{
			{
				ID:                "treasure-start",
				Title:             "The Treasure Map",
				Description:       "A wise owl shows you a magical treasure map with numbers...",
				Required:          true,
				EmotionalTriggers: []string{"learning", "excitement"},
				Adaptations: adapt(
					"This is a fun, safe treasure hunt with your wise owl friend helping you.",
					"The treasure map glows with magical colors and shows amazing prizes!",
					"We'll count slowly together, one number at a time, nice and easy.",
					"You're going to be the best treasure hunter ever!",
					"Let's start our counting adventure with the number one.",
				),
				Choices: []model.Choice{
					{
						ID:            "start-counting",
						Text:          "Start with number 1",
						Consequence:   "Great choice! Let's find our first treasure.",
						NextMilestone: "find-treasure-1",
					},
					{
						ID:            "learn-about-map",
						Text:          "Tell me about the map",
						Consequence:   "The map shows magical places where treasures are hidden!",
						NextMilestone: "find-treasure-1",
					},
				},
			},
			{
				ID:                "find-treasure-1",
				Title:             "Finding Treasure One",
				Description:       "You find your first treasure - one beautiful golden star!",
				Required:          true,
				EmotionalTriggers: []string{"achievement", "counting"},
				Adaptations: adapt(
					"Look! One beautiful, safe golden star that sparkles gently.",
					"Wow! One amazing magical star that grants wishes!",
					"This is the number one - just one single, beautiful star.",
					"One incredible treasure found! You're doing amazingly!",
					"Excellent! You found treasure number one.",
				),
				Choices: []model.Choice{
					{
						ID:            "continue-to-two",
						Text:          "Look for treasure number 2",
						Consequence:   "Let's find two treasures next!",
						NextMilestone: "find-treasure-2",
					},
					{
						ID:            "examine-star",
						Text:          "Look at the star closely",
						Consequence:   "The star sparkles with magical light!",
						NextMilestone: "find-treasure-2",
					},
				},
			},
			{
				ID:                "find-treasure-2",
				Title:             "Finding Treasure Two",
				Description:       "Now you discover two shiny silver coins!",
				Required:          true,
				EmotionalTriggers: []string{"counting", "pattern-recognition"},
				Adaptations: adapt(
					"Two gentle, shiny coins that make a soft, pleasant sound.",
					"Two magical coins that can buy anything in the fairy kingdom!",
					"Count with me: one coin, two coins. That's the number two!",
					"Two fantastic treasures! You're the best treasure hunter!",
					"Perfect! Now you have found two treasures.",
				),
			},
		},
		Characters:         []string{"wise-owl"},
		Settings:           []string{"treasure-island"},
		EducationalContent: []string{"numbers", "counting", "basic-math"},
		MoralLesson:        "Learning is fun when we take it step by step",
	}
}

func bedtimeStars() model.StoryTemplate {
	return model.StoryTemplate{
		ID:               "bedtime-stars",
		Title:            "The Sleepy Star's Lullaby",
		Category:         model.CategoryBedtime,
		AgeRange:         model.AgeRange{Min: 3, Max: 7},
		Description:      "A gentle story about stars going to sleep in the sky",
		EstimatedMinutes: 6,
		Difficulty:       "simple",
		StoryType:        model.StoryTypeStatic,
		PersonaHint:      "calm",
		Milestones: []model.Milestone{
			{
				ID:                "evening-sky",
				Title:             "The Evening Sky",
				Description:       "As the sun sets, the stars begin to twinkle in the peaceful sky...",
				Required:          true,
				EmotionalTriggers: []string{"calm", "sleepy"},
				Adaptations: adapt(
					"The sky is warm and safe, like a cozy blanket covering the world.",
					"The stars dance gently and sing the softest, most beautiful songs.",
					"The stars are getting ready for bed, just like you do every night.",
					"Even the stars know it's time to rest and have sweet dreams.",
					"The evening sky grows dark and peaceful as bedtime approaches.",
				),
			},
			{
				ID:                "sleepy-star",
				Title:             "The Sleepy Star",
				Description:       "One little star yawns and gets ready to sleep...",
				Required:          true,
				EmotionalTriggers: []string{"sleepiness", "comfort"},
				Adaptations: adapt(
					"The little star feels completely safe and loved in the sky.",
					"The star wraps itself in the softest cloud blanket.",
					"Just like you, the star brushes its teeth and gets ready for bed.",
					"The star is excited for all the wonderful dreams it will have.",
					"The little star settles down for a peaceful night's sleep.",
				),
			},
		},
		Characters:  []string{"sleepy-star"},
		Settings:    []string{"night-sky"},
		MoralLesson: "Rest is important and bedtime can be peaceful and comforting",
	}
}
