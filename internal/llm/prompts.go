package llm

import "fmt"

const identifyPrompt = `Identify this image and provide its name and important information including a brief explanation about that image. %s`

const refinementClause = `Focus more on aspects related to %s.`

const relatedQuestionsPrompt = `Based on the following information about an image, generate 5 related questions that someone might ask to learn more about the subjects: %s

Format the output as a simple list of questions, one per line.`

const answerPrompt = `Answer the following question based on the image: %s`

// IdentifyPrompt builds the identify prompt. A non-empty keyword appends the
// refinement clause narrowing the focus to it.
func IdentifyPrompt(keyword string) string {
	clause := ""
	if keyword != "" {
		clause = RefinementClause(keyword)
	}
	return fmt.Sprintf(identifyPrompt, clause)
}

// RefinementClause is the sentence added to the identify prompt on keyword refinement.
func RefinementClause(keyword string) string {
	return fmt.Sprintf(refinementClause, keyword)
}

// RelatedQuestionsPrompt builds the text-only prompt asking for follow-up questions.
func RelatedQuestionsPrompt(description string) string {
	return fmt.Sprintf(relatedQuestionsPrompt, description)
}

// AnswerPrompt builds the prompt answering question about the image.
func AnswerPrompt(question string) string {
	return fmt.Sprintf(answerPrompt, question)
}
