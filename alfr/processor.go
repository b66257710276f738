package alfr

import "context"

// Processor turns an instruction and the text it applies to into a
// response. It is implemented by Session and by the Ollama client.
type Processor interface {
	Process(ctx context.Context, instruction, text string) (string, error)
}

// JoinPrompt combines an instruction and its input text into one prompt.
func JoinPrompt(instruction, text string) string {
	return instruction + "\n\n" + text
}

// Process generates a response for instruction applied to text.
func (s *Session) Process(ctx context.Context, instruction, text string) (string, error) {
	res := s.Generate(ctx, JoinPrompt(instruction, text))
	if err := res.Err(); err != nil {
		return "", err
	}
	return res.Text, nil
}
