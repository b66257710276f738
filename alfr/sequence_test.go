package alfr

import (
	"testing"
)

func TestSequenceCreation(t *testing.T) {
	tokenIDs := []int{1, 2, 3, 4, 5}
	seq := NewSequence(tokenIDs, nil, 3)

	if seq.Len() != 5 {
		t.Errorf("Expected length 5, got %d", seq.Len())
	}

	if seq.NumPromptTokens != 5 {
		t.Errorf("Expected 5 prompt tokens, got %d", seq.NumPromptTokens)
	}

	if seq.NumCompletionTokens() != 0 {
		t.Errorf("Expected 0 completion tokens, got %d", seq.NumCompletionTokens())
	}

	if seq.Status != StatusRunning {
		t.Errorf("Expected status RUNNING, got %v", seq.Status)
	}

	for i, m := range seq.AttentionMask {
		if m != 1 {
			t.Errorf("Expected mask[%d] = 1, got %d", i, m)
		}
	}
}

func TestSequenceCopiesInput(t *testing.T) {
	tokenIDs := []int{7, 8, 9}
	seq := NewSequence(tokenIDs, []int{1, 1, 0}, 0)

	tokenIDs[0] = 99
	if seq.TokenIDs[0] != 7 {
		t.Errorf("Expected sequence to own its tokens, got %d", seq.TokenIDs[0])
	}
	if seq.AttentionMask[2] != 0 {
		t.Errorf("Expected explicit mask to be kept, got %v", seq.AttentionMask)
	}
}

func TestSequenceAppendToken(t *testing.T) {
	seq := NewSequence([]int{1, 2, 3}, nil, 3)

	seq.AppendToken(4)

	if seq.Len() != 4 {
		t.Errorf("Expected length 4, got %d", seq.Len())
	}

	if seq.LastToken != 4 {
		t.Errorf("Expected last token 4, got %d", seq.LastToken)
	}

	if seq.NumCompletionTokens() != 1 {
		t.Errorf("Expected 1 completion token, got %d", seq.NumCompletionTokens())
	}

	if len(seq.AttentionMask) != 4 {
		t.Errorf("Expected mask to grow with tokens, got %d", len(seq.AttentionMask))
	}

	if got := seq.CompletionTokenIDs(); len(got) != 1 || got[0] != 4 {
		t.Errorf("Expected completion [4], got %v", got)
	}

	if got := seq.PromptTokenIDs(); len(got) != 3 {
		t.Errorf("Expected 3 prompt tokens, got %v", got)
	}
}

func TestSequenceEmptyPrompt(t *testing.T) {
	seq := NewSequence(nil, nil, 3)

	if seq.LastToken != -1 {
		t.Errorf("Expected last token -1, got %d", seq.LastToken)
	}
	if banned := seq.BannedNext(); len(banned) != 0 {
		t.Errorf("Expected no banned tokens, got %v", banned)
	}
}

func TestSequenceBannedNextTracksGeneratedTokens(t *testing.T) {
	seq := NewSequence([]int{5, 6}, nil, 3)
	seq.AppendToken(7)
	seq.AppendToken(5)
	seq.AppendToken(6)

	banned := seq.BannedNext()
	if len(banned) != 1 || banned[0] != 7 {
		t.Errorf("Expected [7] banned after 5 6, got %v", banned)
	}

	seq.Finish()
	if !seq.IsFinished() {
		t.Errorf("Expected sequence to be finished")
	}
}
