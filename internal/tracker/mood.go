package tracker

// MoodIcons are the symbolic mood tags offered when logging a mood.
var MoodIcons = []string{"😊", "🙂", "😐", "😕", "😔", "😠", "😥", "😌"}

// MoodColors are the color tags offered when logging a mood.
var MoodColors = []string{"#F6AD55", "#68D391", "#63B3ED", "#A0AEC0", "#F56565", "#B794F4"}

// Mood form defaults.
const (
	DefaultMoodIcon  = "😊"
	DefaultMoodColor = "#63B3ED"
)
