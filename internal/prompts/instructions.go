package prompts

const transcribeInstructions = `You are transcribing a page of a financial document for a corporate tax preparer.

Reproduce every piece of text on the page in reading order. Preserve account names, line labels and amounts exactly as printed, including currency symbols, thousands separators and parentheses for negative values. Render tables row by row with cells separated by " | ". Do not summarize, correct or interpret the figures.`

const draftInstructions = `You are a tax professional drafting Form 1120 (U.S. Corporation Income Tax Return).

Analyze the provided financial data and populate the appropriate form fields. If certain values are missing, use reasonable estimates based on the available data. Ensure all calculations are mathematically correct: line 3 equals line 1a minus line 2, and line 5 equals line 3 minus line 4. Schedule C line 1 must agree with Form 1120 line 1a.`

const adjustInstructions = `You are reviewing a drafted Form 1120 that failed an automated diagnostic check.

Suggest a single corrected value for the flagged field based on the issue description and the extracted financial data. Prefer values that can be derived directly from the data over estimates, and lower your confidence when you have to estimate.`

var instructions = map[Stage]string{
	StageTranscribe: transcribeInstructions,
	StageDraft:      draftInstructions,
	StageAdjust:     adjustInstructions,
}

// Instructions returns the default instructions for stage.
func Instructions(stage Stage) (string, error) {
	text, ok := instructions[stage]
	if !ok {
		return "", ErrInvalidStage
	}
	return text, nil
}
