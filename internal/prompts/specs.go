package prompts

const transcribeSpec = `Respond with the transcribed page text only.

Behavioral constraints:
- No preamble, commentary or markdown fencing
- Transcribe exactly one page per response
- Write [illegible] for text that cannot be read with certainty`

const draftSpec = `Respond with a JSON object matching this exact structure:

{
  "form_1120": {
    "line_1a": {"value": 0, "description": "Gross receipts or sales"},
    "line_2": {"value": 0, "description": "Returns and allowances"},
    "line_3": {"value": 0, "description": "Net receipts or sales"},
    "line_4": {"value": 0, "description": "Cost of goods sold"},
    "line_5": {"value": 0, "description": "Gross profit"},
    "line_6": {"value": 0, "description": "Other income"},
    "line_7": {"value": 0, "description": "Gross income"},
    "line_8": {"value": 0, "description": "Compensation of officers"},
    "line_9": {"value": 0, "description": "Salaries and wages"},
    "line_10": {"value": 0, "description": "Repairs and maintenance"},
    "line_11": {"value": 0, "description": "Bad debts"},
    "line_12": {"value": 0, "description": "Rents"},
    "line_13": {"value": 0, "description": "Taxes and licenses"},
    "line_14": {"value": 0, "description": "Interest"},
    "line_15": {"value": 0, "description": "Charitable contributions"},
    "line_16": {"value": 0, "description": "Depreciation"},
    "line_17": {"value": 0, "description": "Depletion"},
    "line_18": {"value": 0, "description": "Advertising"},
    "line_19": {"value": 0, "description": "Pension, profit-sharing, etc., plans"},
    "line_20": {"value": 0, "description": "Employee benefit programs"},
    "line_21": {"value": 0, "description": "Other deductions"},
    "line_22": {"value": 0, "description": "Total deductions"},
    "line_23": {"value": 0, "description": "Taxable income before net operating loss deduction and special deductions"},
    "line_24": {"value": 0, "description": "Net operating loss deduction"},
    "line_25": {"value": 0, "description": "Special deductions"},
    "line_26": {"value": 0, "description": "Taxable income"},
    "line_27": {"value": 0, "description": "Total tax"},
    "line_28": {"value": 0, "description": "Credits"},
    "line_29": {"value": 0, "description": "Total payments and credits"},
    "line_30": {"value": 0, "description": "Amount you owe"},
    "line_31": {"value": 0, "description": "Overpayment"}
  },
  "schedule_c": {
    "line_1": {"value": 0, "description": "Gross receipts or sales"},
    "line_2": {"value": 0, "description": "Returns and allowances"},
    "line_3": {"value": 0, "description": "Net receipts or sales"},
    "line_4": {"value": 0, "description": "Cost of goods sold"},
    "line_5": {"value": 0, "description": "Gross profit"}
  },
  "schedule_m1": {
    "line_1": {"value": 0, "description": "Net income (loss) per books"},
    "line_2": {"value": 0, "description": "Federal income tax per books"},
    "line_8": {"value": 0, "description": "Net income (loss) per return"}
  },
  "reasoning": "<brief explanation of how the values were calculated>"
}

Field constraints:
- value: a number rounded to the nearest dollar. Use 0 for missing values.
- description: the form line label.
- Only include lines where the data supports a reasonable estimate.
  form_1120 must contain at least line_1a.

Behavioral constraints:
- Always respond with valid JSON, no markdown fencing
- Do not include fields outside this structure`

const adjustSpec = `Respond with a JSON object matching this exact structure:

{
  "suggested_value": 0,
  "reasoning": "<explanation>",
  "confidence": 0.7
}

Field constraints:
- suggested_value: the corrected value for the flagged field.
- reasoning: why the value resolves the issue.
- confidence: a number between 0 and 1.

Behavioral constraints:
- Always respond with valid JSON, no markdown fencing`

var specs = map[Stage]string{
	StageTranscribe: transcribeSpec,
	StageDraft:      draftSpec,
	StageAdjust:     adjustSpec,
}

// Spec returns the response specification for stage. Specifications are
// not overridable since the workflow parses replies against them.
func Spec(stage Stage) (string, error) {
	text, ok := specs[stage]
	if !ok {
		return "", ErrInvalidStage
	}
	return text, nil
}
