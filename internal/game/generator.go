package game

import (
	"math/rand/v2"

	"quizgame-service/internal/domain"
)

// Shuffler permutes n elements through swap.
type Shuffler func(n int, swap func(i, j int))

// generate builds the game-scoped copy of question with a shuffled variant order.
func generate(gameID int64, question domain.Question, shuffle Shuffler) domain.GeneratedQuestion {
	order := make([]int64, len(question.Variants))
	for i, v := range question.Variants {
		order[i] = v.ID
	}
	shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	q := question
	return domain.GeneratedQuestion{
		GameID:        gameID,
		QuestionID:    question.ID,
		VariantsOrder: order,
		Question:      &q,
	}
}

func defaultShuffler() Shuffler {
	return rand.Shuffle
}
