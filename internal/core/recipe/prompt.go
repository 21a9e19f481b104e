package recipe

import "fmt"

// BuildPrompt 建立食譜生成提示詞，內含輸出格式範例
func BuildPrompt(ingredients string) string {
	return fmt.Sprintf(`You are a professional chef and recipe creator. Given the following ingredients: %s

Create 2-3 delicious recipes using these ingredients. For each recipe, provide:

1. Recipe Name
2. Complete ingredient list (including quantities)
3. Step-by-step cooking instructions
4. Estimated cooking time
5. Difficulty level (Easy/Medium/Hard)
6. Nutritional information (calories, protein, carbs)

Format your response as a JSON array with this structure:
[
  {
    "name": "Recipe Name",
    "ingredients": ["ingredient 1", "ingredient 2"],
    "instructions": ["step 1", "step 2"],
    "cookingTime": "30 minutes",
    "difficulty": "Easy",
    "nutrition": {
      "calories": 350,
      "protein": "15g",
      "carbs": "45g"
    }
  }
]

Provide only the JSON response, no additional text.`, ingredients)
}
