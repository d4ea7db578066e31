package schema

// TabEventType describes a browser tab lifecycle change.
type TabEventType string

const (
	// TabEventLoading fires when the main frame starts loading a document.
	TabEventLoading TabEventType = "loading"
	// TabEventComplete fires when the document finished loading.
	TabEventComplete TabEventType = "complete"
	// TabEventClosed fires once when the tab goes away.
	TabEventClosed TabEventType = "closed"
)

// TabEvent is emitted by browsers for every tab lifecycle change.
type TabEvent struct {
	TabID TabID
	Type  TabEventType
	URL   string
}
