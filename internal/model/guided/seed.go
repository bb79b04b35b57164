package guided

// Seed provides the authored guided session scripts.
func Seed() []Definition {
	return []Definition{
		{
			Type:        "morning_checkin",
			Title:       "Morning check-in",
			Description: "A short start-of-day check on sleep, goals and intentions.",
			Opening:     "Good morning. Let's take a few minutes to set up your day.",
			Closing:     "Thanks for checking in. Have a good day, and come back tonight if you want to reflect.",
			Prompts: []Prompt{
				{
					ID:   "sleep",
					Text: "How did you sleep, and how are you feeling as you start the day?",
					FollowUps: []FollowUp{
						{Keywords: []string{"tired", "exhausted", "didn't sleep", "insomnia"}, Text: "That sounds draining. Is anything in particular keeping you up at night?"},
						{Keywords: []string{"anxious", "nervous", "worried", "dread"}, Text: "What's weighing on you most this morning?"},
					},
				},
				{
					ID:     "yesterday",
					Text:   "Yesterday you wrote about {yesterday_highlight}. How are you carrying that into today?",
					SkipIf: []SkipCondition{SkipNoYesterdayHighlight},
				},
				{
					ID:     "goal_check",
					Text:   "You're working toward {goals}. What's one small step you can take on that today?",
					SkipIf: []SkipCondition{SkipNoActiveGoals},
				},
				{
					ID:     "situations",
					Text:   "How are things going with {situations}?",
					SkipIf: []SkipCondition{SkipNoOpenSituations},
				},
				{
					ID:   "intention",
					Text: "What's one intention you want to hold onto today?",
				},
			},
			OutputProcessing: "Write a short morning journal entry in first person from these answers. Keep the user's wording where possible and end with the stated intention.",
		},
		{
			Type:        "evening_reflection",
			Title:       "Evening reflection",
			Description: "Wind down by looking back at the day.",
			Opening:     "Welcome back. Let's look back at your day together.",
			Closing:     "Thank you for reflecting. Rest well.",
			Prompts: []Prompt{
				{
					ID:   "highlight",
					Text: "What was the best part of your day?",
				},
				{
					ID:   "challenge",
					Text: "What was the hardest moment today?",
					FollowUps: []FollowUp{
						{Keywords: []string{"argument", "fight", "conflict"}, Text: "How do you feel about how that conversation ended?"},
						{Keywords: []string{"overwhelmed", "stressed", "too much"}, Text: "What's one thing you could take off your plate tomorrow?"},
					},
				},
				{
					ID:     "mood_dip",
					Text:   "Your mood has been around {mood} lately. What would help you recharge?",
					SkipIf: []SkipCondition{SkipMoodAbove},
				},
				{
					ID:     "goal_progress",
					Text:   "Did you make any progress on {goals} today?",
					SkipIf: []SkipCondition{SkipNoActiveGoals},
				},
				{
					ID:   "tomorrow",
					Text: "What are you looking forward to tomorrow?",
				},
			},
			OutputProcessing: "Summarise the day as a reflective evening entry: highlight, challenge, and what comes next. Keep a gentle tone.",
		},
		{
			Type:        "gratitude",
			Title:       "Gratitude practice",
			Description: "Name three things you're grateful for.",
			Opening:     "Let's take a moment for gratitude.",
			Closing:     "Lovely. Holding onto these moments adds up over time.",
			Prompts: []Prompt{
				{ID: "gratitude_1", Text: "What's one thing you're grateful for right now?"},
				{ID: "gratitude_2", Text: "Who is someone you appreciate, and why?"},
				{ID: "gratitude_3", Text: "What's a small moment from this week that made you smile?"},
			},
			OutputProcessing: "Turn these answers into a short gratitude list, one line each, in the user's voice.",
		},
		{
			Type:        "weekly_review",
			Title:       "Weekly review",
			Description: "Review the week's wins, lessons and next steps.",
			Opening:     "Let's review your week.",
			Closing:     "That's a solid review. See you next week.",
			Prompts: []Prompt{
				{ID: "wins", Text: "What went well this week?"},
				{ID: "lessons", Text: "What did you learn, or what would you do differently?"},
				{
					ID:     "situations",
					Text:   "Where do things stand with {situations}?",
					SkipIf: []SkipCondition{SkipNoOpenSituations},
				},
				{
					ID:     "goals",
					Text:   "Looking at {goals}, what's the focus for next week?",
					SkipIf: []SkipCondition{SkipNoActiveGoals},
				},
				{
					ID:     "low_week",
					Text:   "It seems like it's been a heavy stretch, with mood around {mood}. What support would help?",
					SkipIf: []SkipCondition{SkipMoodAbove},
				},
			},
			OutputProcessing: "Produce a weekly review entry with sections: wins, lessons, next week's focus.",
		},
		{
			Type:              "vent_session",
			Title:             "Let it out",
			Description:       "Talk freely about something that's bothering you.",
			HighInteractivity: true,
			Opening:           "I'm here to listen. Take your time.",
			Closing:           "Thanks for sharing that with me. It took courage.",
			Prompts: []Prompt{
				{
					ID:   "whats_up",
					Text: "What's on your mind?",
					FollowUps: []FollowUp{
						{Keywords: []string{"angry", "furious", "mad"}, Text: "That anger makes sense. What part of it feels most unfair?"},
						{Keywords: []string{"sad", "hurt", "lonely"}, Text: "I'm sorry it hurts. When did you start feeling this way?"},
					},
				},
				{ID: "need", Text: "What do you need most right now?"},
				{
					ID:     "low_mood",
					Text:   "You've been feeling low lately. Is there someone you could reach out to this week?",
					SkipIf: []SkipCondition{SkipMoodAbove},
				},
			},
			OutputProcessing: "Write a private, non-judgemental entry capturing what the user vented about and what they said they need.",
		},
		{
			Type:              "celebration",
			Title:             "Celebrate a win",
			Description:       "Savour something that went right.",
			HighInteractivity: true,
			Opening:           "I love this. Tell me about your win!",
			Closing:           "Congratulations again. Remember this feeling.",
			Prompts: []Prompt{
				{ID: "the_win", Text: "What happened?"},
				{ID: "how_it_felt", Text: "How did it feel in the moment?"},
				{
					ID:     "goal_link",
					Text:   "Does this move you closer to {goals}?",
					SkipIf: []SkipCondition{SkipNoActiveGoals},
				},
			},
			OutputProcessing: "Write an upbeat entry celebrating the win, including how it felt and why it matters.",
		},
	}
}
