package vision

// Wire types for the images:annotate REST endpoint. Only the fields the
// feature extractor reads are declared.

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    image     `json:"image"`
	Features []feature `json:"features"`
}

type image struct {
	Source imageSource `json:"source"`
}

type imageSource struct {
	ImageURI string `json:"imageUri"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults,omitempty"`
}

type annotateResponse struct {
	Responses []imageResponse `json:"responses"`
}

type imageResponse struct {
	LabelAnnotations           []entityAnnotation `json:"labelAnnotations"`
	LocalizedObjectAnnotations []objectAnnotation `json:"localizedObjectAnnotations"`
	ImagePropertiesAnnotation  *imageProperties   `json:"imagePropertiesAnnotation"`
	TextAnnotations            []entityAnnotation `json:"textAnnotations"`
	Error                      *annotateError     `json:"error"`
}

type entityAnnotation struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

type objectAnnotation struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type imageProperties struct {
	DominantColors struct {
		Colors []colorInfo `json:"colors"`
	} `json:"dominantColors"`
}

type colorInfo struct {
	Color struct {
		Red   float64 `json:"red"`
		Green float64 `json:"green"`
		Blue  float64 `json:"blue"`
	} `json:"color"`
	Score         float64 `json:"score"`
	PixelFraction float64 `json:"pixelFraction"`
}

type annotateError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
