package vision

import "fmt"

const describePrompt = `You are a real estate assistant. Briefly describe this photo of a property in 2-3 concise sentences. Focus only on the room type and most visually important real estate features. Do not mention furniture, decor, or personal items. Be as brief and clear as possible. At the end, include a line: "Establishing shot: Yes" or "Establishing shot: No" based on whether this image shows a wide front view of the house, typically used as the opening scene.`

const groupSystemPrompt = `You are a real estate photo assistant.

Group property listing photos into logical clusters based on the area or room they depict, using common real estate terms like "Kitchen", "Exterior", or "Primary Bedroom". Do not use generic names like "Room 1".

Grouping guidelines:
- Each image belongs to one group only.
- Group images showing the same room or visually connected area.
- Combine front and back exterior shots into "Exterior" if either group is small.
- Only include groups with 2+ images unless it is an important area like Exterior or Primary Bedroom.
- Skip laundry rooms, garages, closets, hallways, and bathrooms with only 1 image unless exceptional.

Return ONLY a valid JSON array with no additional text. Each group has exactly this structure:
[
  { "groupName": "Exterior", "images": ["exterior1.jpg", "backyard2.jpg"] },
  { "groupName": "Kitchen", "images": ["kitchen1.jpg", "kitchen2.jpg"] }
]
Reference images by their "filename" field from the input.`

func contextSystemPrompt(propertyInfo string) string {
	return fmt.Sprintf(`<PropertyInfo>
%s

<Instructions>
- Create a concise property summary focused on key selling points for a 20-30 second social media video
- Highlight the most compelling features that would grab attention in a short video
- Include style, location appeal, and standout characteristics
- Keep it brief - this context will guide multiple short script segments
- Focus on emotional appeal and unique value propositions`, propertyInfo)
}

func scriptSystemPrompt(propertyContext string) string {
	return fmt.Sprintf(`You write voice-over scripts for short-form real estate marketing videos.

Property context:
%s

For each scene in the input, write one script segment of 15-30 words. Tone: persuasive, emotional, yet professional. Style: compelling storytelling that builds desire. Perspective: second person, as if personally inviting a buyer to envision their future.

Return ONLY a valid JSON array, one entry per input scene, preserving the scene's groupId:
[
  { "groupId": "<id from input>", "script": "..." }
]`, propertyContext)
}
