package common

// NutritionInfo 營養資訊
type NutritionInfo struct {
	Calories int    `json:"calories" bson:"calories"`
	Protein  string `json:"protein" bson:"protein"`
	Carbs    string `json:"carbs" bson:"carbs"`
}

// Recipe 食譜
// 正規化之後每個欄位都必須存在且型別正確
type Recipe struct {
	Name         string        `json:"name" bson:"name"`
	Ingredients  []string      `json:"ingredients" bson:"ingredients"`
	Instructions []string      `json:"instructions" bson:"instructions"`
	CookingTime  string        `json:"cookingTime" bson:"cookingTime"`
	Difficulty   string        `json:"difficulty" bson:"difficulty"`
	Nutrition    NutritionInfo `json:"nutrition" bson:"nutrition"`
}

// 難度慣例值
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// CloneRecipes 深度複製食譜切片
func CloneRecipes(recipes []Recipe) []Recipe {
	if recipes == nil {
		return nil
	}
	out := make([]Recipe, len(recipes))
	for i, r := range recipes {
		out[i] = r
		out[i].Ingredients = append([]string(nil), r.Ingredients...)
		out[i].Instructions = append([]string(nil), r.Instructions...)
	}
	return out
}
