package recipe

import (
	"fmt"
	"strings"

	"recipe-analyzer/internal/pkg/common"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// 備援食譜常數
const (
	FallbackName        = "AI Generated Recipe"
	FallbackIngredient  = "Follow the ingredients you provided"
	FallbackTextLimit   = 500
	defaultFeatured     = "mixed ingredients"
	defaultCookingTime  = "25 minutes"
	providerFailureText = "Here's a simple recipe using %s: Mix all ingredients together and cook for 20 minutes."
)

var (
	// 預設食譜額外加入的基本調味
	pantryStaples = []string{"Salt", "Pepper", "Olive oil"}

	defaultRecipeNutrition = common.NutritionInfo{Calories: 350, Protein: "15g", Carbs: "45g"}
)

// FallbackRecipe 以模型原文建立單一食譜，說明截斷至 500 字元
func FallbackRecipe(rawText string) common.Recipe {
	return common.Recipe{
		Name:         FallbackName,
		Ingredients:  []string{FallbackIngredient},
		Instructions: []string{common.Truncate(strings.ToValidUTF8(rawText, "\uFFFD"), FallbackTextLimit)},
		CookingTime:  DefaultCookingTime,
		Difficulty:   DefaultDifficulty,
		Nutrition:    DefaultNutrition,
	}
}

// ProviderFailureText 模型呼叫失敗時代替輸出的句子
func ProviderFailureText(ingredients string) string {
	return fmt.Sprintf(providerFailureText, ingredients)
}

// SplitIngredients 以逗號切分並去除空白項目
func SplitIngredients(ingredients string) []string {
	parts := strings.Split(ingredients, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// DefaultRecipes 不依賴模型的確定性食譜
func DefaultRecipes(ingredients string) []common.Recipe {
	tokens := SplitIngredients(ingredients)
	featured := defaultFeatured
	if len(tokens) > 0 {
		featured = tokens[0]
	}

	list := make([]string, 0, len(tokens)+len(pantryStaples))
	list = append(list, tokens...)
	list = append(list, pantryStaples...)

	// Caser 不可跨 goroutine 共用，每次重新建立
	return []common.Recipe{{
		Name:        fmt.Sprintf("Simple %s Recipe", cases.Title(language.English).String(featured)),
		Ingredients: list,
		Instructions: []string{
			"Prepare all ingredients by washing and chopping as needed.",
			"Heat olive oil in a large pan over medium heat.",
			fmt.Sprintf("Add %s and cook for 5-7 minutes.", featured),
			"Season with salt and pepper to taste.",
			"Add remaining ingredients and cook until tender.",
			"Serve hot and enjoy!",
		},
		CookingTime: defaultCookingTime,
		Difficulty:  common.DifficultyEasy,
		Nutrition:   defaultRecipeNutrition,
	}}
}

// proseMentionsIngredients 文字中是否提到任一輸入食材
func proseMentionsIngredients(rawText, ingredients string) bool {
	if strings.TrimSpace(rawText) == "" {
		return false
	}
	tokens := SplitIngredients(ingredients)
	if len(tokens) == 0 {
		return true
	}
	lower := strings.ToLower(rawText)
	for _, token := range tokens {
		if strings.Contains(lower, strings.ToLower(token)) {
			return true
		}
	}
	return false
}
