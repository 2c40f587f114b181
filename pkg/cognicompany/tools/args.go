package tools

// Argument types, one per Kind. Their tags drive the advertised schema.

type DateTimeArgs struct{}

type UserLookupArgs struct {
	ID string `json:"id" description:"Chat platform user id"`
}

type MentionArgs struct {
	ID string `json:"id" description:"Chat platform user id to mention"`
}

type TaskCreateArgs struct {
	UserID        string `json:"user_id" description:"Id of the user the task belongs to"`
	Title         string `json:"title" description:"Short task title"`
	Description   string `json:"description,omitempty" description:"Longer task description"`
	DueDate       string `json:"due_date,omitempty" description:"Due date, e.g. 2024-05-01"`
	EstimatedTime string `json:"estimated_time,omitempty" description:"Estimated effort, e.g. 2h"`
}

type TaskListArgs struct {
	UserID string `json:"user_id" description:"Id of the user whose tasks to list"`
}

type TaskCompleteArgs struct {
	ID string `json:"id" description:"Task id"`
}

type ImageArgs struct {
	Prompt  string `json:"prompt" description:"Description of the image to generate"`
	Model   string `json:"model,omitempty" enum:"dall-e-3,dall-e-2" description:"Image model"`
	Quality string `json:"quality,omitempty" enum:"standard,hd" description:"Image quality"`
	Style   string `json:"style,omitempty" enum:"natural,vivid" description:"Image style"`
}

type TTSArgs struct {
	Content string `json:"content" description:"Text to speak"`
	Voice   string `json:"voice,omitempty" enum:"alloy,echo,fable,nova,onyx,shimmer" description:"Voice to use"`
}

type TranscribeArgs struct {
	URL string `json:"url" description:"Link to a video or audio file"`
}

type AssistantListArgs struct{}

type WebScrapeArgs struct {
	URL string `json:"url" description:"http or https URL of the page to read"`
}
