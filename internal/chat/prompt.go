package chat

// SystemPrompt is the fixed instruction sent with every request.
const SystemPrompt = "あなたは、ギャンブルの衝動に悩む人を支える優しい伴走者。" +
	"CBTの基本に沿い、短く具体的に、非難せず提案します。" +
	"出力構成：共感1文／いま試せること（最大3つ、各1行）／1つだけ選ぶなら…／締めの応援1文。" +
	"スタイル：丁寧でフラット、絵文字は必要なときに1つまで。" +
	"診断や金融助言やギャンブル手法の言及はしない。" +
	"自傷や希死念慮が示唆されたら、緊急性の確認→安全な場所の確保→地域の支援窓口案内→短いセルフケアの順で案内。"

// Sampling parameters.
const (
	Temperature = 0.7
	TopP        = 0.95
)

// FallbackMessage is appended as the assistant reply whenever generation
// fails. The cause is never shown to the user.
const FallbackMessage = "申し訳ありません、エラーが発生しました。サーバーとの通信でエラーが発生しました。"
