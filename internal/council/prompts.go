package council

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/tjfontaine/llm-council/internal/domain"
)

// stage1SystemPrompt keeps council members from revealing their identity,
// which would defeat the anonymized ranking in stage 2.
const stage1SystemPrompt = `You are a helpful AI assistant participating in a council deliberation. IMPORTANT RULES:
1. Do NOT mention your name, identity, or what AI model you are.
2. Do NOT say things like 'As ChatGPT', 'As Claude', 'As an AI assistant', etc.
3. Do NOT refer to yourself by any model name or company name.
4. Simply answer the question directly without introducing yourself.
5. Focus entirely on providing a helpful, accurate response to the user's question.
6. Respond in the same language as the user's question.`

const rankingPromptTemplate = `You are evaluating different responses to the following question:

Question: {{.Question}}

Here are the responses from different models (anonymized):

{{range .Responses}}{{.Label}}:
{{.Text}}

{{end}}Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`

const chairmanPromptTemplate = `You are the Chairman of a council of AI models working together to provide the best possible answer.

As the Chairman ({{.ChairmanName}}), your role is to DIRECTLY ANSWER the user's question using the collective wisdom of the council.

Original Question: {{.Question}}

STAGE 1 - Individual Responses from Council Members:
{{range .Stage1}}Model: {{.DisplayName}} ({{.RoleLabel}})
Response: {{.Response}}

{{end}}STAGE 2 - Peer Rankings and Evaluations:
{{range .Stage2}}Model: {{.DisplayName}} ({{.RoleLabel}})
Ranking: {{.Ranking}}

{{end}}IMPORTANT INSTRUCTIONS:
1. DO NOT just evaluate which response was best or summarize the rankings.
2. DIRECTLY ANSWER the user's original question as if you are the final expert.
3. Use the BEST insights, ideas, and information from ALL council responses to craft your answer.
4. Your response should be a COMPLETE, STANDALONE answer to the user's question.
5. Do NOT mention "Response A", "Response B", etc. in your final answer.
6. Do NOT say things like "Response B was ranked highest" - the user doesn't care about internal rankings.
7. Synthesize the best parts of all responses into ONE coherent, comprehensive answer.

The council members have provided their perspectives. Now YOU must deliver the definitive answer that combines their collective wisdom.

CRITICAL LANGUAGE RULE: You MUST respond in the SAME LANGUAGE as the original question. Match the user's language exactly.

Provide your comprehensive, direct answer to the user's question:`

const titlePromptTemplate = `Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: {{.Question}}

Title:`

var (
	rankingTmpl  = template.Must(template.New("ranking").Parse(rankingPromptTemplate))
	chairmanTmpl = template.Must(template.New("chairman").Parse(chairmanPromptTemplate))
	titleTmpl    = template.Must(template.New("title").Parse(titlePromptTemplate))
)

type labeledResponse struct {
	Label string
	Text  string
}

func buildRankingPrompt(question string, responses []labeledResponse) (string, error) {
	var buf bytes.Buffer
	err := rankingTmpl.Execute(&buf, struct {
		Question  string
		Responses []labeledResponse
	}{question, responses})
	if err != nil {
		return "", fmt.Errorf("executing ranking template: %w", err)
	}
	return buf.String(), nil
}

func buildChairmanPrompt(chairmanName, question string, stage1 []domain.Stage1Result, stage2 []domain.Stage2Result) (string, error) {
	var buf bytes.Buffer
	err := chairmanTmpl.Execute(&buf, struct {
		ChairmanName string
		Question     string
		Stage1       []domain.Stage1Result
		Stage2       []domain.Stage2Result
	}{chairmanName, question, stage1, stage2})
	if err != nil {
		return "", fmt.Errorf("executing chairman template: %w", err)
	}
	return buf.String(), nil
}

func buildTitlePrompt(question string) (string, error) {
	var buf bytes.Buffer
	if err := titleTmpl.Execute(&buf, struct{ Question string }{question}); err != nil {
		return "", fmt.Errorf("executing title template: %w", err)
	}
	return buf.String(), nil
}
